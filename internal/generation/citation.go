package generation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/plccoach/plccoach/internal/chunk"
)

// Citation is a validated source reference extracted from a response.
// IsValid is always true on returned citations; unbacked ones are dropped
// before they reach the caller. The field is kept so downstream consumers
// of the JSON shape can rely on it.
type Citation struct {
	BookTitle    string `json:"book_title"`
	Authors      string `json:"authors"`
	Chapter      int    `json:"chapter"`
	ChapterTitle string `json:"chapter_title"`
	Pages        string `json:"pages"`
	IsValid      bool   `json:"is_valid"`
}

// citationPatterns match the citation format the system prompt asks for,
// ordered from canonical to lenient. Models sometimes wrap the bracketed
// title in markdown emphasis or drop the brackets inside bold text; each
// variant gets its own pattern and the first pattern that produces any match
// wins, so one response is never parsed under two conflicting formats.
var citationPatterns = []*regexp.Regexp{
	// [Book Title] by Authors, Chapter N: Title, pp. XX-YY
	regexp.MustCompile(`\[([^\]]+)\]\s+by\s+([^,]+),\s+Chapter\s+(\d+):\s+([^,]+),\s+pp\.\s+(\d+-\d+)`),
	// **Book Title** by Authors, Chapter N: Title, pp. XX-YY
	regexp.MustCompile(`\*{1,2}([^*\[\]]+?)\*{1,2}\s+by\s+([^,]+),\s+Chapter\s+(\d+):\s+([^,]+),\s+pp\.\s+(\d+-\d+)`),
}

// ExtractCitations parses citations out of a response and keeps only those
// matching a provided chunk on book title and chapter number. Invalid
// citations are logged and dropped rather than shown to the user.
func (g *Generator) ExtractCitations(response string, chunks []chunk.Chunk) []Citation {
	citations := []Citation{}

	var matches [][]string
	for _, pattern := range citationPatterns {
		matches = pattern.FindAllStringSubmatch(response, -1)
		if len(matches) > 0 {
			break
		}
	}

	for _, m := range matches {
		chapter, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		c := Citation{
			BookTitle:    strings.TrimSpace(m[1]),
			Authors:      strings.TrimSpace(m[2]),
			Chapter:      chapter,
			ChapterTitle: strings.TrimSpace(m[4]),
			Pages:        m[5],
		}

		if !citationMatchesSource(c, chunks) {
			g.logger.Warn("dropping citation not backed by a source",
				"book_title", c.BookTitle,
				"chapter", c.Chapter,
			)
			continue
		}
		c.IsValid = true
		citations = append(citations, c)
	}

	return citations
}

// citationMatchesSource reports whether some chunk backs the citation's book
// title and chapter number.
func citationMatchesSource(c Citation, chunks []chunk.Chunk) bool {
	for _, ch := range chunks {
		if strings.EqualFold(ch.BookTitle, c.BookTitle) && ch.ChapterNumber == c.Chapter {
			return true
		}
	}
	return false
}
