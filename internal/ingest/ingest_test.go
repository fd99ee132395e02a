package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/embedding"
	"github.com/plccoach/plccoach/internal/log"
	"github.com/plccoach/plccoach/internal/tokenizer"
)

type fakeEmbedder struct {
	failedBatches int
	err           error
}

func (f fakeEmbedder) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) (embedding.Result, error) {
	if f.err != nil {
		return embedding.Result{}, f.err
	}
	res := embedding.Result{FailedBatches: f.failedBatches}
	for _, c := range chunks {
		res.Records = append(res.Records, embedding.Record{
			Chunk:  c,
			Vector: []float32{1, 0},
		})
	}
	res.Usage = embedding.Usage{Tokens: len(chunks) * 10, CostUSD: 0.001}
	return res, nil
}

type fakeInserter struct {
	err    error
	stored int
}

func (f *fakeInserter) InsertRecords(ctx context.Context, records []embedding.Record) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.stored += len(records)
	return len(records), nil
}

func writeBookFile(t *testing.T, dir, name string, book chunk.Book) {
	t.Helper()
	data, err := json.Marshal(book)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func validBook(id string) chunk.Book {
	content := ""
	for i := 0; i < 80; i++ {
		content += "Teams collaborate on common formative assessments every week. "
	}
	return chunk.Book{
		BookID:    id,
		BookTitle: "Learning by Doing",
		Authors:   []string{"Richard DuFour"},
		Chapters: []chunk.Chapter{{
			ChapterNumber: 1,
			ChapterTitle:  "A Guide to Action",
			PageStart:     1,
			PageEnd:       20,
			Content:       content,
		}},
	}
}

func newTestPipeline(embedder Embedder, inserter Inserter) *Pipeline {
	counter := tokenizer.Heuristic{}
	splitter := chunk.NewSplitter(100, 200, 20, counter)
	return NewPipeline(splitter, embedder, inserter, counter, 200, log.NewNop())
}

func TestRunIngestsValidBooks(t *testing.T) {
	dir := t.TempDir()
	writeBookFile(t, dir, "book1.json", validBook("b1"))
	writeBookFile(t, dir, "book2.json", validBook("b2"))

	inserter := &fakeInserter{}
	p := newTestPipeline(fakeEmbedder{}, inserter)

	run, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Books != 2 || run.BooksFailed != 0 {
		t.Errorf("books = %d, failed = %d, want 2 and 0", run.Books, run.BooksFailed)
	}
	if run.ChunksStored == 0 || run.ChunksStored != inserter.stored {
		t.Errorf("chunks stored = %d, inserter saw %d", run.ChunksStored, inserter.stored)
	}
	if run.Tokens == 0 || run.CostUSD == 0 {
		t.Errorf("usage not accumulated: tokens = %d, cost = %v", run.Tokens, run.CostUSD)
	}
	for _, d := range run.Details {
		if d.Status != "ok" {
			t.Errorf("book %s status = %q", d.File, d.Status)
		}
	}
}

func TestRunBadFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeBookFile(t, dir, "book1.json", validBook("b1"))
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(fakeEmbedder{}, &fakeInserter{})

	run, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Books != 2 || run.BooksFailed != 1 {
		t.Errorf("books = %d, failed = %d, want 2 and 1", run.Books, run.BooksFailed)
	}
	// broken.json sorts first; the valid book must still be ingested.
	if run.ChunksStored == 0 {
		t.Error("valid book was not ingested after the broken one")
	}
}

func TestRunRejectsBookWithMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	book := validBook("b1")
	book.Authors = nil // validation failure for every chunk
	writeBookFile(t, dir, "book1.json", book)

	inserter := &fakeInserter{}
	p := newTestPipeline(fakeEmbedder{}, inserter)

	run, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.BooksFailed != 1 || inserter.stored != 0 {
		t.Errorf("failed = %d, stored = %d, want rejected whole", run.BooksFailed, inserter.stored)
	}
	if len(run.Details) != 1 || len(run.Details[0].Errors) == 0 {
		t.Errorf("details = %+v, want validation errors recorded", run.Details)
	}
}

func TestRunPartialEmbedding(t *testing.T) {
	dir := t.TempDir()
	writeBookFile(t, dir, "book1.json", validBook("b1"))

	p := newTestPipeline(fakeEmbedder{failedBatches: 1}, &fakeInserter{})

	run, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.BatchesFailed != 1 {
		t.Errorf("batches failed = %d, want 1", run.BatchesFailed)
	}
	if run.BooksFailed != 0 {
		t.Errorf("books failed = %d; partial success is not a failure", run.BooksFailed)
	}
	if run.Details[0].Status != "partial" {
		t.Errorf("status = %q, want partial", run.Details[0].Status)
	}
}

func TestRunStoreFailure(t *testing.T) {
	dir := t.TempDir()
	writeBookFile(t, dir, "book1.json", validBook("b1"))

	p := newTestPipeline(fakeEmbedder{}, &fakeInserter{err: errors.New("connection refused")})

	run, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.BooksFailed != 1 || run.ChunksStored != 0 {
		t.Errorf("failed = %d, stored = %d", run.BooksFailed, run.ChunksStored)
	}
}

func TestWriteRunLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	run := RunLog{Books: 1, ChunksStored: 12, Tokens: 3400, CostUSD: 0.00044}
	if err := WriteRunLog(path, run); err != nil {
		t.Fatalf("WriteRunLog() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got RunLog
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("run log is not valid JSON: %v", err)
	}
	if got.ChunksStored != 12 || got.Tokens != 3400 {
		t.Errorf("round-tripped run log = %+v", got)
	}
}
