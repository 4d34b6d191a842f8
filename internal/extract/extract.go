// Package extract is the second-stage agent: it pulls typed attributes out of
// a user message given the slots the controller declared. Extraction is
// rule-based and deterministic; every value cites the substring it came from,
// and anything that fails validation lands in AmbiguousFields rather than
// Values.
package extract

import (
	"time"
)

// Request carries one extraction call.
type Request struct {
	Message    string
	Attributes []string          // slots requested by the controller
	Known      map[string]string // already-filled slots, used for disambiguation
	Summary    string            // optional conversation summary
	Today      time.Time         // the conversation's "today"
	LastAsked  string            // slot the previous assistant turn asked for
}

// Result is the extraction outcome the controller merges into progress.
type Result struct {
	Values          map[string]string `json:"values"`
	Confidence      float64           `json:"confidence"`
	Evidence        map[string]string `json:"evidence"`
	MissingFields   []string          `json:"missing_fields"`
	AmbiguousFields []string          `json:"ambiguous_fields"`
}

type outcome int

const (
	outcomeMissing outcome = iota
	outcomeValue
	outcomeAmbiguous
)

// slotResult is the tagged per-slot outcome: a canonical value with evidence,
// an ambiguity with a reason, or nothing found.
type slotResult struct {
	outcome  outcome
	value    string
	evidence string
	reason   string
	inferred bool // value required inference (e.g. year assumed)
}

func value(v, evidence string) slotResult {
	return slotResult{outcome: outcomeValue, value: v, evidence: evidence}
}

func inferredValue(v, evidence string) slotResult {
	return slotResult{outcome: outcomeValue, value: v, evidence: evidence, inferred: true}
}

func ambiguous(evidence, reason string) slotResult {
	return slotResult{outcome: outcomeAmbiguous, evidence: evidence, reason: reason}
}

func missing() slotResult { return slotResult{outcome: outcomeMissing} }

// normalizer extracts one slot from a message. Implementations must not
// invent values without textual support.
type normalizer func(req *Request) slotResult

var normalizers = map[string]normalizer{
	"race_distance":  extractRaceDistance,
	"race_date":      extractRaceDate,
	"target_time":    extractTargetTime,
	"weekly_mileage": extractWeeklyMileage,
	"season_start":   extractSeasonStart,
	"season_end":     extractSeasonEnd,
	"description":    extractDescription,
}

// Extract runs every requested slot's normalizer over the message. An empty
// message is a no-op: everything requested comes back missing.
func Extract(req Request) Result {
	res := Result{
		Values:          map[string]string{},
		Evidence:        map[string]string{},
		MissingFields:   []string{},
		AmbiguousFields: []string{},
	}
	if req.Today.IsZero() {
		req.Today = time.Now().UTC()
	}

	if isBlank(req.Message) {
		res.MissingFields = append(res.MissingFields, req.Attributes...)
		return res
	}

	found, inferred, ambig := 0, 0, 0
	for _, attr := range req.Attributes {
		norm, ok := normalizers[attr]
		if !ok {
			res.MissingFields = append(res.MissingFields, attr)
			continue
		}
		sr := norm(&req)
		switch sr.outcome {
		case outcomeValue:
			res.Values[attr] = sr.value
			res.Evidence[attr] = sr.evidence
			found++
			if sr.inferred {
				inferred++
			}
		case outcomeAmbiguous:
			res.AmbiguousFields = append(res.AmbiguousFields, attr)
			if sr.evidence != "" {
				res.Evidence[attr] = sr.evidence
			}
			ambig++
		default:
			res.MissingFields = append(res.MissingFields, attr)
		}
	}

	res.Confidence = confidence(found, inferred, ambig)
	return res
}

// confidence is an aggregate self-assessment: explicit matches score high,
// inference and ambiguity pull it down.
func confidence(found, inferred, ambig int) float64 {
	if found == 0 {
		return 0
	}
	c := 0.95 - 0.1*float64(inferred) - 0.2*float64(ambig)
	if c < 0.1 {
		c = 0.1
	}
	return c
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
