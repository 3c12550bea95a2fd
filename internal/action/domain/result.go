package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// LegacySuccessKeyword must open the details, as a whole word, when a result has no explicit
// success flag and the legacy fallback is enabled. "Unsuccessful" or "not successful" never match.
const LegacySuccessKeyword = "success"

var legacyKeywordPattern = regexp.MustCompile(`(?i)^\s*` + LegacySuccessKeyword + `\b`)

// Outcome classifies a worker result.
type Outcome int

const (
	// OutcomeUnknown is a result with no explicit flag that the legacy fallback did not accept.
	OutcomeUnknown Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is a worker-authored result. Raw holds the document verbatim; the other fields are parsed from it.
type Result struct {
	ActionID  string     `json:"action_id,omitempty"`
	Success   *bool      `json:"success,omitempty"`
	Details   string     `json:"details,omitempty"`
	Op        Op         `json:"op,omitempty"`
	User      string     `json:"user,omitempty"`
	Requester *Requester `json:"requester,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseResult decodes a result document, keeping the raw bytes.
func ParseResult(raw []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("action: decode result: %w", err)
	}
	r.Raw = append(json.RawMessage(nil), raw...)
	return &r, nil
}

// Classify returns the outcome of r. The details keyword is only consulted when legacyKeyword is true.
func (r *Result) Classify(legacyKeyword bool) Outcome {
	if r.Success != nil {
		if *r.Success {
			return OutcomeSucceeded
		}
		return OutcomeFailed
	}
	if legacyKeyword && r.UsedLegacyKeyword() {
		return OutcomeSucceeded
	}
	return OutcomeUnknown
}

// UsedLegacyKeyword reports whether r only succeeds through the details keyword.
func (r *Result) UsedLegacyKeyword() bool {
	return r.Success == nil && legacyKeywordPattern.MatchString(r.Details)
}
