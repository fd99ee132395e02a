// Package domain defines the seven fixed knowledge domains used to scope
// retrieval, and the classifiers that map free text onto them.
//
// Two interchangeable strategies share one contract: KeywordClassifier scores
// keyword hits (ingestion-time tagging, no network), and Router calls the
// language model with a constrained function schema (query-time, cached).
// Classification is best-effort by design: every path that can fail falls
// back to a safe default instead of returning an error, because the chat
// pipeline must never hard-fail on classification.
package domain

import "strings"

// The seven knowledge domains. Order is canonical: scoring ties and
// secondary-domain discovery resolve in this order.
const (
	Assessment      = "assessment"
	Collaboration   = "collaboration"
	Leadership      = "leadership"
	Curriculum      = "curriculum"
	DataAnalysis    = "data_analysis"
	SchoolCulture   = "school_culture"
	StudentLearning = "student_learning"
)

// Fallback is the domain used when classification fails or no keyword
// matches. It doubles as the safe default for query-time errors; the two
// fallbacks are deliberately the same constant.
const Fallback = SchoolCulture

// Canon lists all domains in canonical order.
var Canon = []string{
	Assessment,
	Collaboration,
	Leadership,
	Curriculum,
	DataAnalysis,
	SchoolCulture,
	StudentLearning,
}

// descriptions drive both the classification prompt and Describe.
var descriptions = map[string]string{
	Assessment:      "Formative and summative assessments, grading practices, evaluation methods",
	Collaboration:   "Team structures, collaborative norms, meeting protocols, teamwork",
	Leadership:      "Principal and administrator guidance, change management, leadership practices",
	Curriculum:      "Guaranteed and viable curriculum, standards alignment, curriculum design",
	DataAnalysis:    "RTI, Response to Intervention, MTSS, data-driven decisions, progress monitoring",
	SchoolCulture:   "PLC implementation, culture building, professional learning communities",
	StudentLearning: "Student-centered practices, engagement, motivation, achievement",
}

// Valid reports whether name is one of the seven domains.
func Valid(name string) bool {
	_, ok := descriptions[name]
	return ok
}

// Describe returns the description for a domain, or "" if unknown.
func Describe(name string) string {
	return descriptions[name]
}

// All returns a copy of the domain-to-description catalog.
func All() map[string]string {
	out := make(map[string]string, len(descriptions))
	for k, v := range descriptions {
		out[k] = v
	}
	return out
}

// Classification is the outcome of classifying a piece of text.
type Classification struct {
	Primary               string   `json:"primary_domain"`
	Secondary             []string `json:"secondary_domains"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
	Confidence            float64  `json:"confidence"`
}

// Domains returns the flattened [primary] + secondary list.
func (c Classification) Domains() []string {
	out := make([]string, 0, 1+len(c.Secondary))
	out = append(out, c.Primary)
	out = append(out, c.Secondary...)
	return out
}

// SafeDefault is the classification returned when the classifier itself
// failed: fixed fallback domain, no clarification, low confidence.
func SafeDefault() Classification {
	return Classification{
		Primary:    Fallback,
		Secondary:  []string{},
		Confidence: 0.3,
	}
}

// normalize sanitizes a model- or caller-supplied classification: an unknown
// primary collapses to the fallback, the primary is removed from secondary if
// duplicated, unknown secondaries are dropped, and secondary is capped at 2.
func normalize(c Classification) Classification {
	if !Valid(c.Primary) {
		c.Primary = Fallback
	}
	secondary := make([]string, 0, 2)
	for _, s := range c.Secondary {
		if s == c.Primary || !Valid(s) {
			continue
		}
		secondary = append(secondary, s)
		if len(secondary) == 2 {
			break
		}
	}
	c.Secondary = secondary
	return c
}

// NormalizeQuery produces the cache key for a query: lower-cased and
// whitespace-trimmed.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
