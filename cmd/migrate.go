package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plccoach/plccoach/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	version, err := database.Migrate(cfg.PostgresURL())
	if err != nil {
		return err
	}

	fmt.Printf("schema up to date at version %d\n", version)
	return nil
}
