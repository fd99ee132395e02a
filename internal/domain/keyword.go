package domain

import "strings"

// domainKeywords are the hit lists for the rule-based classifier. Matching is
// case-insensitive substring containment against the text and, when given,
// the book title.
var domainKeywords = map[string][]string{
	Assessment:      {"assessment", "formative", "summative", "test", "quiz", "evaluation", "grading"},
	Collaboration:   {"team", "collaborative", "meeting", "protocol", "norms", "discussion"},
	Leadership:      {"principal", "leader", "administrator", "change management", "vision"},
	Curriculum:      {"curriculum", "standards", "guaranteed", "viable", "scope", "sequence"},
	DataAnalysis:    {"data", "rti", "intervention", "mtss", "tier", "progress monitoring"},
	SchoolCulture:   {"culture", "plc", "professional learning", "community", "implementation"},
	StudentLearning: {"student", "learning", "engagement", "motivation", "achievement"},
}

// KeywordClassifier scores each domain by counting keyword hits. It needs no
// network and is used at ingestion time to tag chunks.
type KeywordClassifier struct{}

// Classify returns a classification for text, optionally informed by a book
// title. Primary is the highest-scoring domain (canonical order breaks ties),
// defaulting to Fallback when every score is zero. Secondary holds domains
// with score > 1, excluding the primary, capped at 2, in canonical order.
func (KeywordClassifier) Classify(text, title string) Classification {
	textLower := strings.ToLower(text)
	titleLower := strings.ToLower(title)

	scores := make(map[string]int, len(Canon))
	for _, d := range Canon {
		score := 0
		for _, kw := range domainKeywords[d] {
			if strings.Contains(textLower, kw) || (titleLower != "" && strings.Contains(titleLower, kw)) {
				score++
			}
		}
		scores[d] = score
	}

	primary := Fallback
	best := 0
	for _, d := range Canon {
		if scores[d] > best {
			best = scores[d]
			primary = d
		}
	}

	var secondary []string
	for _, d := range Canon {
		if d != primary && scores[d] > 1 {
			secondary = append(secondary, d)
			if len(secondary) == 2 {
				break
			}
		}
	}

	return Classification{
		Primary:   primary,
		Secondary: secondary,
		// Keyword scoring is a coarse signal; report moderate confidence
		// scaled by hit count so callers can distinguish it from the model.
		Confidence: keywordConfidence(best),
	}
}

func keywordConfidence(hits int) float64 {
	switch {
	case hits == 0:
		return 0.3
	case hits == 1:
		return 0.5
	default:
		return 0.7
	}
}
