// Package chunk turns raw chapter text into token-bounded, overlapping,
// semantically-snapped chunks ready for embedding.
//
// The split algorithm binary-searches character offsets for a span whose
// token count lands inside [min, max], snaps the cut to the nearest paragraph
// or sentence boundary, and starts the next chunk inside the previous one so
// consecutive chunks share trailing/leading context. The binary search relies
// on the tokenizer.Counter monotonicity precondition: a longer character span
// never counts fewer tokens.
package chunk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plccoach/plccoach/internal/tokenizer"
)

// Book is the extracted-book input produced by the PDF extraction stage.
type Book struct {
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title"`
	Authors   []string  `json:"authors"`
	Chapters  []Chapter `json:"chapters"`
}

// Chapter is a single chapter of an extracted book.
type Chapter struct {
	ChapterNumber int    `json:"chapter_number"`
	ChapterTitle  string `json:"chapter_title"`
	PageStart     int    `json:"page_start"`
	PageEnd       int    `json:"page_end"`
	Content       string `json:"content"`
}

// Chunk is a contiguous slice of a book chapter prepared for embedding.
// Chunks are created once per ingestion run from immutable source text and
// never mutated; re-running ingestion supersedes them.
type Chunk struct {
	ChunkID              string    `json:"chunk_id"`
	BookID               string    `json:"book_id"`
	BookTitle            string    `json:"book_title"`
	Authors              []string  `json:"authors"`
	ChapterNumber        int       `json:"chapter_number"`
	ChapterTitle         string    `json:"chapter_title"`
	PageStart            int       `json:"page_start"`
	PageEnd              int       `json:"page_end"`
	ChunkIndex           int       `json:"chunk_index"`
	TotalChunksInChapter int       `json:"total_chunks_in_chapter"`
	Content              string    `json:"content"`
	TokenCount           int       `json:"token_count"`
	PrimaryDomain        string    `json:"primary_domain,omitempty"`
	SecondaryDomains     []string  `json:"secondary_domains,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// ClassifyFunc tags a chunk with domains given its text and the book title.
type ClassifyFunc func(text, title string) (primary string, secondary []string)

// FromBook chunks every chapter of book and attaches full metadata. classify
// may be nil, in which case domains are left unset for later tagging.
func FromBook(s *Splitter, book Book, classify ClassifyFunc) []Chunk {
	var all []Chunk

	for _, chapter := range book.Chapters {
		if chapter.Content == "" {
			continue
		}

		texts := s.Split(chapter.Content)
		for idx, text := range texts {
			c := Chunk{
				ChunkID:              uuid.NewString(),
				BookID:               book.BookID,
				BookTitle:            book.BookTitle,
				Authors:              book.Authors,
				ChapterNumber:        chapter.ChapterNumber,
				ChapterTitle:         chapter.ChapterTitle,
				PageStart:            chapter.PageStart,
				PageEnd:              chapter.PageEnd,
				ChunkIndex:           idx,
				TotalChunksInChapter: len(texts),
				Content:              text,
				TokenCount:           s.counter.Count(text),
				CreatedAt:            time.Now().UTC(),
			}
			if classify != nil {
				c.PrimaryDomain, c.SecondaryDomains = classify(text, book.BookTitle)
			}
			all = append(all, c)
		}
	}

	return all
}

// tokenCountTolerance is the allowed drift between a chunk's reported token
// count and a fresh recount.
const tokenCountTolerance = 5

// Validate checks a chunk set against quality requirements and returns one
// error string per violation. An empty slice means the set is valid. A set
// with any error is rejected as a whole; chunks are never partially repaired.
func Validate(chunks []Chunk, maxTokens int, counter tokenizer.Counter) []string {
	var errs []string

	for i, c := range chunks {
		if c.ChunkID == "" {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'chunk_id'", i))
		}
		if c.BookID == "" {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'book_id'", i))
		}
		if c.BookTitle == "" {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'book_title'", i))
		}
		if len(c.Authors) == 0 {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'authors'", i))
		}
		if c.ChapterNumber <= 0 {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'chapter_number'", i))
		}
		if c.ChapterTitle == "" {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'chapter_title'", i))
		}
		if c.PageStart <= 0 || c.PageEnd < c.PageStart {
			errs = append(errs, fmt.Sprintf("chunk %d: invalid page range %d-%d", i, c.PageStart, c.PageEnd))
		}
		if c.TotalChunksInChapter <= 0 {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'total_chunks_in_chapter'", i))
		}
		if c.Content == "" {
			errs = append(errs, fmt.Sprintf("chunk %d: missing required field 'content'", i))
		}

		if c.TokenCount == 0 {
			errs = append(errs, fmt.Sprintf("chunk %d: token count is 0", i))
		}
		if c.TokenCount > maxTokens {
			errs = append(errs, fmt.Sprintf("chunk %d: token count %d exceeds max %d", i, c.TokenCount, maxTokens))
		}

		actual := counter.Count(c.Content)
		if diff := actual - c.TokenCount; diff > tokenCountTolerance || diff < -tokenCountTolerance {
			errs = append(errs, fmt.Sprintf("chunk %d: token count mismatch (reported: %d, actual: %d)", i, c.TokenCount, actual))
		}
	}

	return errs
}
