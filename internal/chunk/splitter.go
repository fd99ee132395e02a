package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/plccoach/plccoach/internal/tokenizer"
)

// Boundary patterns, tried in order of preference when snapping a cut point.
var (
	paragraphBreak = regexp.MustCompile(`\n\n+`)
	headingLine    = regexp.MustCompile(`\n#+ .+\n`)
	sentenceEnd    = regexp.MustCompile(`[.?!][ \n]`)
)

// Snap windows: how far a cut point may move to land on a boundary.
const (
	paragraphSnapWindow = 200
	sentenceSnapWindow  = 100
	boundaryLookahead   = 100

	// overlapCandidateChars bounds the text considered for chunk overlap.
	overlapCandidateChars = 500
)

// Splitter splits chapter text into chunks of minTokens..maxTokens tokens
// with roughly overlapTokens of shared context between consecutive chunks.
type Splitter struct {
	minTokens     int
	maxTokens     int
	overlapTokens int
	counter       tokenizer.Counter
}

// NewSplitter creates a Splitter. Bounds must satisfy 0 < min < max and
// 0 <= overlap < min; config.Validate enforces this upstream.
func NewSplitter(minTokens, maxTokens, overlapTokens int, counter tokenizer.Counter) *Splitter {
	return &Splitter{
		minTokens:     minTokens,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		counter:       counter,
	}
}

// Split divides text into chunk strings. Text at or under minTokens becomes a
// single chunk. Every returned chunk is non-empty and trimmed; all counts are
// under the configured maximum.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.counter.Count(text) <= s.minTokens {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		rest := text[start:]
		if s.counter.Count(rest) <= s.maxTokens {
			if trimmed := strings.TrimSpace(rest); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			break
		}

		end := s.findBoundary(text, start)
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, piece)
		}

		// Next chunk starts inside this one to preserve context, but never
		// further back than a quarter of the chunk, so progress is guaranteed.
		overlapAt := s.overlapStart(piece, end)
		if floor := end - len(piece)/4; overlapAt < floor {
			overlapAt = floor
		}
		start = runeStart(text, overlapAt)
	}

	return chunks
}

// findBoundary binary-searches for an end offset whose span counts within
// [minTokens, maxTokens], then snaps it to a nearby semantic boundary.
func (s *Splitter) findBoundary(text string, start int) int {
	end := len(text)
	lo, hi := start+1, len(text)

	for lo < hi {
		mid := (lo + hi) / 2
		tokens := s.counter.Count(text[start:mid])
		switch {
		case tokens < s.minTokens:
			lo = mid + 1
		case tokens > s.maxTokens:
			hi = mid
		default:
			end = mid
			lo = hi // found an acceptable span
		}
	}
	if end == len(text) && lo < len(text) {
		end = lo
	}

	// The binary search moves byte by byte and can land inside a multi-byte
	// rune; a cut there would leave invalid UTF-8 on both sides.
	end = runeStart(text, end)
	if end <= start {
		_, size := utf8.DecodeRuneInString(text[start:])
		end = start + size
	}

	return s.snapToBoundary(text, start, end)
}

// runeStart backs i off to the start of the rune containing it. Assumes text
// is valid UTF-8, as chapter content is.
func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// snapToBoundary moves end to the closest paragraph break (or heading start)
// within paragraphSnapWindow, else the closest sentence end within
// sentenceSnapWindow, else leaves it unchanged. The search window extends a
// little past end so a boundary just beyond the cut can be picked up, but a
// boundary is only eligible if the snapped span stays within the token
// budget.
func (s *Splitter) snapToBoundary(text string, start, end int) int {
	windowEnd := end + boundaryLookahead
	if windowEnd > len(text) {
		windowEnd = len(text)
	}
	window := text[start:windowEnd]
	target := end - start

	admissible := func(at int) bool {
		return at <= target || s.counter.Count(text[start:start+at]) <= s.maxTokens
	}

	var paragraphs []int
	for _, m := range paragraphBreak.FindAllStringIndex(window, -1) {
		if admissible(m[1]) {
			paragraphs = append(paragraphs, m[1])
		}
	}
	for _, m := range headingLine.FindAllStringIndex(window, -1) {
		if admissible(m[0]) {
			paragraphs = append(paragraphs, m[0])
		}
	}
	if at, ok := closest(paragraphs, target, paragraphSnapWindow); ok {
		return start + at
	}

	var sentences []int
	for _, m := range sentenceEnd.FindAllStringIndex(window, -1) {
		if admissible(m[1]) {
			sentences = append(sentences, m[1])
		}
	}
	if at, ok := closest(sentences, target, sentenceSnapWindow); ok {
		return start + at
	}

	return end
}

// closest picks the offset nearest target within maxDist. Offsets at or
// before zero are ignored so a snap can never produce an empty span.
func closest(offsets []int, target, maxDist int) (int, bool) {
	best, bestDist := 0, maxDist+1
	for _, at := range offsets {
		if at <= 0 {
			continue
		}
		dist := at - target
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = at, dist
		}
	}
	if bestDist > maxDist {
		return 0, false
	}
	return best, true
}

// overlapStart returns the absolute offset where the next chunk should begin
// so that it shares roughly overlapTokens of trailing context with the chunk
// that ended at end. It binary-searches the longest suffix of the overlap
// candidate that still fits the overlap budget.
func (s *Splitter) overlapStart(chunkText string, end int) int {
	candidate := chunkText
	if len(candidate) > overlapCandidateChars {
		candidate = candidate[len(candidate)-overlapCandidateChars:]
	}
	if s.counter.Count(candidate) <= s.overlapTokens {
		return end - len(candidate)
	}

	lo, hi := 0, len(candidate)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.counter.Count(candidate[len(candidate)-mid:]) <= s.overlapTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return end - lo
}
