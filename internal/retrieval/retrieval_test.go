package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/domain"
	"github.com/plccoach/plccoach/internal/log"
	"github.com/plccoach/plccoach/internal/store"
)

type fixedClassifier struct {
	result domain.Classification
}

func (f fixedClassifier) Route(ctx context.Context, query string) domain.Classification {
	return f.result
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeSearcher struct {
	candidates []store.Candidate
	err        error

	gotDomains []string
	gotLimit   int
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, vec []float32, domains []string, limit int) ([]store.Candidate, error) {
	f.gotDomains = domains
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func candidate(id, bookID string, pageStart, pageEnd int, similarity float64) store.Candidate {
	return store.Candidate{
		Chunk: chunk.Chunk{
			ChunkID:   id,
			BookID:    bookID,
			BookTitle: "Book " + bookID,
			PageStart: pageStart,
			PageEnd:   pageEnd,
			Content:   "content " + id,
		},
		Similarity: similarity,
	}
}

func TestRetrieve(t *testing.T) {
	classifier := fixedClassifier{result: domain.Classification{
		Primary:    domain.Collaboration,
		Secondary:  []string{domain.SchoolCulture},
		Confidence: 0.9,
	}}
	searcher := &fakeSearcher{candidates: []store.Candidate{
		candidate("c1", "b1", 1, 10, 0.95),
		candidate("c2", "b1", 5, 15, 0.90), // overlaps c1, dropped
		candidate("c3", "b2", 1, 10, 0.85), // same pages, different book
		candidate("c4", "b1", 20, 30, 0.80),
	}}

	e := NewEngine(classifier, fakeEmbedder{}, searcher, 10, 3, log.NewNop())
	res := e.Retrieve(context.Background(), "how should our team run meetings?")

	if res.Err != "" {
		t.Fatalf("Retrieve() Err = %q", res.Err)
	}
	if res.Failed() {
		t.Fatal("Retrieve() reported failure with candidates present")
	}
	if searcher.gotLimit != 30 {
		t.Errorf("search limit = %d, want oversample*finalK = 30", searcher.gotLimit)
	}
	wantDomains := []string{domain.Collaboration, domain.SchoolCulture}
	if len(searcher.gotDomains) != 2 || searcher.gotDomains[0] != wantDomains[0] || searcher.gotDomains[1] != wantDomains[1] {
		t.Errorf("search domains = %v, want %v", searcher.gotDomains, wantDomains)
	}
	if res.TotalRetrieved != 4 || res.TotalAfterDedup != 3 {
		t.Errorf("retrieved = %d, after dedup = %d, want 4 and 3", res.TotalRetrieved, res.TotalAfterDedup)
	}
	wantIDs := []string{"c1", "c3", "c4"}
	for i, c := range res.Candidates {
		if c.Chunk.ChunkID != wantIDs[i] {
			t.Errorf("candidate %d = %s, want %s", i, c.Chunk.ChunkID, wantIDs[i])
		}
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	e := NewEngine(fixedClassifier{}, fakeEmbedder{}, &fakeSearcher{}, 10, 7, log.NewNop())

	res := e.Retrieve(context.Background(), "   ")
	if res.Err == "" || !res.Failed() {
		t.Errorf("Retrieve(empty) = %+v, want failure", res)
	}
}

func TestRetrieveEmbedFailureDegrades(t *testing.T) {
	e := NewEngine(
		fixedClassifier{result: domain.SafeDefault()},
		fakeEmbedder{err: errors.New("api down")},
		&fakeSearcher{},
		10, 7, log.NewNop(),
	)

	res := e.Retrieve(context.Background(), "what is formative assessment?")
	if !res.Failed() {
		t.Fatal("Retrieve() did not report failure")
	}
	if res.Err == "" || len(res.Candidates) != 0 {
		t.Errorf("Retrieve() = %+v, want Err set and no candidates", res)
	}
}

func TestRetrieveSearchFailureDegrades(t *testing.T) {
	e := NewEngine(
		fixedClassifier{result: domain.SafeDefault()},
		fakeEmbedder{},
		&fakeSearcher{err: errors.New("connection refused")},
		10, 7, log.NewNop(),
	)

	res := e.Retrieve(context.Background(), "what is formative assessment?")
	if !res.Failed() || res.Err == "" {
		t.Errorf("Retrieve() = %+v, want failure", res)
	}
}

func TestDedupeStopsAtLimit(t *testing.T) {
	var candidates []store.Candidate
	for i := 0; i < 20; i++ {
		candidates = append(candidates, candidate(
			fmt.Sprintf("c%d", i),
			fmt.Sprintf("b%d", i), // all distinct books, no overlaps
			1, 10, 1.0-float64(i)/100,
		))
	}

	got := dedupe(candidates, 7)
	if len(got) != 7 {
		t.Errorf("dedupe() kept %d, want 7", len(got))
	}
}

func TestDedupeDropsExactDuplicates(t *testing.T) {
	candidates := []store.Candidate{
		candidate("c1", "b1", 1, 10, 0.9),
		candidate("c1", "b1", 1, 10, 0.9),
	}

	got := dedupe(candidates, 7)
	if len(got) != 1 {
		t.Errorf("dedupe() kept %d, want 1", len(got))
	}
}

func TestDedupeBacksFillsAfterRejection(t *testing.T) {
	candidates := []store.Candidate{
		candidate("c1", "b1", 1, 10, 0.9),
		candidate("c2", "b1", 1, 10, 0.8),  // rejected, overlaps c1
		candidate("c3", "b1", 11, 20, 0.7), // distinct range, still selected
	}

	got := dedupe(candidates, 2)
	if len(got) != 2 {
		t.Fatalf("dedupe() kept %d, want 2", len(got))
	}
	if got[1].Chunk.ChunkID != "c3" {
		t.Errorf("second selection = %s, want c3", got[1].Chunk.ChunkID)
	}
}

func TestDedupeAdjacentRangesDoNotOverlap(t *testing.T) {
	candidates := []store.Candidate{
		candidate("c1", "b1", 1, 10, 0.9),
		candidate("c2", "b1", 11, 20, 0.8),
	}

	got := dedupe(candidates, 7)
	if len(got) != 2 {
		t.Errorf("dedupe() kept %d, want 2; ranges 1-10 and 11-20 are disjoint", len(got))
	}
}
