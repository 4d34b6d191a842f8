package controller

import (
	"fmt"
	"regexp"
	"strings"
)

// Response is a candidate turn output, checked before emission.
type Response struct {
	Text          string
	Target        Action
	MissingSlots  []string
	ShouldExecute bool
}

// adviceMarkers flag advisory or explanatory language that has no place in a
// slot-collection turn.
var adviceMarkers = []string{
	"recommend", "should", "because", "typically", "generally", "advice", "suggest", "consider",
}

const chattyMaxLen = 280

var wordRe = regexp.MustCompile(`[a-z]+`)

// Validate applies the response rules. All must pass; the first failure is
// returned and the turn falls back to a deterministic question.
//
// Rules: with slots missing the text asks exactly one question and contains
// no advice; with a target set the text stays terse; with nothing missing and
// a target set the turn must execute.
func Validate(r *Response) error {
	missing := len(r.MissingSlots) > 0
	targeted := r.Target != "" && r.Target != ActionNone

	if missing {
		if n := strings.Count(r.Text, "?"); n != 1 {
			return fmt.Errorf("single-question rule: found %d question marks", n)
		}
	}

	if targeted && missing {
		lower := strings.ToLower(r.Text)
		for _, word := range wordRe.FindAllString(lower, -1) {
			for _, marker := range adviceMarkers {
				if word == marker {
					return fmt.Errorf("no-advice rule: contains %q", marker)
				}
			}
		}
	}

	if targeted {
		if len(r.Text) > chattyMaxLen || strings.Contains(r.Text, "\n\n") {
			return fmt.Errorf("no-chatty rule: response is paragraph-length")
		}
	}

	if !missing && targeted && !r.ShouldExecute {
		return fmt.Errorf("execute-immediately rule: all slots filled but should_execute is false")
	}
	return nil
}
