// Package scorecheck provides request and result types for spam scoring,
// the verdict derivation and a bounded in-memory history of recent checks.
package scorecheck

import (
	"fmt"
	"strings"
)

// Request is a single email to check for spam. Subject and body are joined
// with a single space before scoring, either part may be empty.
type Request struct {
	Subject   string  `json:"subject"`
	Body      string  `json:"body"`
	Threshold float64 `json:"threshold,omitempty"` // optional per-request override
}

// Text returns the blob passed to the scoring pipeline, trimmed.
func (r *Request) Text() string {
	return strings.TrimSpace(r.Subject + " " + r.Body)
}

func (r *Request) String() string {
	return fmt.Sprintf("subject:%q, body:%q", r.Subject, r.Body)
}

// Result is the outcome of a single spam check.
type Result struct {
	Spam        bool    `json:"spam"`
	Probability float64 `json:"probability"`
	Threshold   float64 `json:"threshold"`
	Source      string  `json:"source"` // model source label
}

func (r *Result) String() string {
	spamOrHam := "ham"
	if r.Spam {
		spamOrHam = "spam"
	}
	return fmt.Sprintf("%s, prob:%.3f, threshold:%.2f", spamOrHam, r.Probability, r.Threshold)
}

// Verdict returns true (spam) iff probability reaches the threshold.
func Verdict(probability, threshold float64) bool {
	return probability >= threshold
}
