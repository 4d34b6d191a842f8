package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRe  = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?\b`)
	relativeRe  = regexp.MustCompile(`(?i)\bin\s+(\d{1,2}|a)\s+(day|week|month)s?\b`)
	seasonRe    = regexp.MustCompile(`(?i)\b(spring|summer|autumn|fall|winter)\b`)
	openEndedRe = regexp.MustCompile(`(?i)\b(sometime|someday|eventually|later this year|at some point)\b`)
)

type dateMatch struct {
	t        time.Time
	evidence string
	inferred bool
	pos      int
}

func (d dateMatch) toResult() slotResult {
	iso := d.t.Format("2006-01-02")
	if d.inferred {
		return inferredValue(iso, d.evidence)
	}
	return value(iso, d.evidence)
}

// findDates returns every concrete date in the message, in textual order.
// Bare month-day forms resolve to their next occurrence relative to today.
func findDates(msg string, today time.Time) []dateMatch {
	var out []dateMatch

	for _, idx := range isoDateRe.FindAllStringSubmatchIndex(msg, -1) {
		m := isoDateRe.FindStringSubmatch(msg[idx[0]:idx[1]])
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := civilDate(y, mo, d); ok {
			out = append(out, dateMatch{t: t, evidence: m[0], pos: idx[0]})
		}
	}

	for _, idx := range monthDayRe.FindAllStringSubmatchIndex(msg, -1) {
		m := monthDayRe.FindStringSubmatch(msg[idx[0]:idx[1]])
		key := strings.ToLower(m[1])
		if len(key) > 3 {
			key = key[:3]
		}
		month, ok := months[key]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[2])
		inferred := false
		var year int
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		} else {
			// next occurrence
			year = today.Year()
			if t, ok := civilDate(year, int(month), day); !ok || !t.After(today) {
				year++
			}
			inferred = true
		}
		if t, ok := civilDate(year, int(month), day); ok {
			out = append(out, dateMatch{t: t, evidence: m[0], inferred: inferred, pos: idx[0]})
		}
	}

	for _, idx := range relativeRe.FindAllStringSubmatchIndex(msg, -1) {
		m := relativeRe.FindStringSubmatch(msg[idx[0]:idx[1]])
		n := 1
		if m[1] != "a" && m[1] != "A" {
			n, _ = strconv.Atoi(m[1])
		}
		t := today
		switch strings.ToLower(m[2]) {
		case "day":
			t = t.AddDate(0, 0, n)
		case "week":
			t = t.AddDate(0, 0, 7*n)
		case "month":
			t = t.AddDate(0, n, 0)
		}
		out = append(out, dateMatch{t: t, evidence: m[0], inferred: true, pos: idx[0]})
	}

	// textual order, stable across match kinds
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].pos < out[j-1].pos; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// civilDate builds a UTC midnight date, rejecting impossible day numbers.
func civilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// extractRaceDate finds a single future date. Season words and open-ended
// phrases with no concrete date are ambiguous, never guessed; past dates are
// ambiguous because a race date must be in the future.
func extractRaceDate(req *Request) slotResult {
	today := time.Date(req.Today.Year(), req.Today.Month(), req.Today.Day(), 0, 0, 0, 0, time.UTC)
	dates := findDates(req.Message, today)
	if len(dates) == 0 {
		if m := seasonRe.FindString(req.Message); m != "" {
			return ambiguous(m, "season word is not a date")
		}
		if m := openEndedRe.FindString(req.Message); m != "" {
			return ambiguous(m, "open-ended time reference")
		}
		return missing()
	}
	d := dates[0]
	if !d.t.After(today) {
		return ambiguous(d.evidence, fmt.Sprintf("%s is not in the future", d.t.Format("2006-01-02")))
	}
	return d.toResult()
}
