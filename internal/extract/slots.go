package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// distancePatterns are checked in order; the first match wins. Ultra comes
// before marathon because "ultramarathon" contains "marathon", and half
// before marathon for the same reason.
var distancePatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\b(ultra(?:marathon)?|50k|100k|50[ -]?mile(?:r)?)\b`), "ultra"},
	{regexp.MustCompile(`(?i)\b(half[ -]?marathon|13\.1)\b`), "half"},
	{regexp.MustCompile(`(?i)\b(marathon|26\.2|full)\b`), "marathon"},
	{regexp.MustCompile(`(?i)\b10\s?k\b`), "10k"},
	{regexp.MustCompile(`(?i)\b5\s?k\b`), "5k"},
}

// A bare "half" is usually a fraction ("one and a half hours", "half a mile"),
// not a race. It counts as a distance only in a race context and never when
// the surrounding text reads as a quantity.
var (
	bareHalfRe     = regexp.MustCompile(`(?i)\bhalf\b`)
	halfUnitRe     = regexp.MustCompile(`(?i)^[ -]*(?:an?\s+)?(?:hours?|hrs?|minutes?|mins?|miles?|of\b)`)
	halfFractionRe = regexp.MustCompile(`(?i)(?:and\s+an?|&)\s*$`)
	raceCueRe      = regexp.MustCompile(`(?i)\b(race|racing|training for|signed up|run(?:ning)? a|goal)\b`)
)

// extractRaceDistance maps distance synonyms to the canonical enum. A bare
// number of miles is never a race distance.
func extractRaceDistance(req *Request) slotResult {
	for _, p := range distancePatterns {
		if m := p.re.FindString(req.Message); m != "" {
			return value(p.canonical, m)
		}
	}
	if m := bareHalfRe.FindStringIndex(req.Message); m != nil {
		before, after := req.Message[:m[0]], req.Message[m[1]:]
		cued := raceCueRe.MatchString(req.Message) || req.LastAsked == "race_distance"
		if cued && !halfUnitRe.MatchString(after) && !halfFractionRe.MatchString(before) {
			return value("half", req.Message[m[0]:m[1]])
		}
	}
	return missing()
}

var (
	subTimeRe   = regexp.MustCompile(`(?i)\bsub[- ]?(\d{1,2})(?::(\d{2}))?\b`)
	underHrsRe  = regexp.MustCompile(`(?i)\bunder (\d{1,2}) hours?\b`)
	plainHrsRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:\.(\d))? hours?\b`)
	threePartRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2}):(\d{2})\b`)
	twoPartRe   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// extractTargetTime normalizes goal-time phrases to HH:MM:SS. A bare M:SS-or-
// H:MM number is resolved against the known race distance; when that cannot
// settle it, the value is ambiguous rather than guessed.
func extractTargetTime(req *Request) slotResult {
	if m := subTimeRe.FindStringSubmatch(req.Message); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		return value(fmt.Sprintf("%02d:%02d:00", h, min), m[0])
	}
	if m := underHrsRe.FindStringSubmatch(req.Message); m != nil {
		h, _ := strconv.Atoi(m[1])
		return value(fmt.Sprintf("%02d:00:00", h), m[0])
	}
	if m := threePartRe.FindStringSubmatch(req.Message); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		if min > 59 || sec > 59 {
			return ambiguous(m[0], "not a valid duration")
		}
		return value(fmt.Sprintf("%02d:%02d:%02d", h, min, sec), m[0])
	}
	if m := twoPartRe.FindStringSubmatch(req.Message); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if b > 59 {
			return ambiguous(m[0], "not a valid duration")
		}
		switch req.Known["race_distance"] {
		case "half", "marathon", "ultra":
			// long race: read as HH:MM
			return value(fmt.Sprintf("%02d:%02d:00", a, b), m[0])
		case "5k", "10k":
			// short race: read as MM:SS
			return value(fmt.Sprintf("00:%02d:%02d", a, b), m[0])
		}
		if a >= 2 && a <= 6 {
			return inferredValue(fmt.Sprintf("%02d:%02d:00", a, b), m[0])
		}
		return ambiguous(m[0], "could be HH:MM or MM:SS")
	}
	if m := plainHrsRe.FindStringSubmatch(req.Message); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			tenth, _ := strconv.Atoi(m[2])
			min = tenth * 6
		}
		return value(fmt.Sprintf("%02d:%02d:00", h, min), m[0])
	}
	return missing()
}

var (
	mileageRe  = regexp.MustCompile(`(?i)~?\s*(\d{1,3}(?:\.\d+)?)\s*(mpw|mi/wk|miles? per week|miles?/week|miles? a week|miles? weekly)\b`)
	bareNumRe  = regexp.MustCompile(`\b(\d{1,3}(?:\.\d+)?)\b`)
	aboutMiles = regexp.MustCompile(`(?i)(?:running|averaging|about|around)\s*~?\s*(\d{1,3}(?:\.\d+)?)\s*miles?\b`)
)

// extractWeeklyMileage requires an explicit per-week unit. A bare number is
// accepted only when the previous assistant turn asked for weekly mileage.
func extractWeeklyMileage(req *Request) slotResult {
	m := mileageRe.FindStringSubmatch(req.Message)
	if m == nil {
		m = aboutMiles.FindStringSubmatch(req.Message)
	}
	if m == nil && req.LastAsked == "weekly_mileage" {
		m = bareNumRe.FindStringSubmatch(req.Message)
	}
	if m == nil {
		return missing()
	}
	miles, err := strconv.ParseFloat(m[1], 64)
	if err != nil || miles <= 0 {
		return ambiguous(m[0], "weekly mileage must be a positive number")
	}
	if miles > 200 {
		return ambiguous(m[0], "implausible weekly mileage")
	}
	return value(strconv.FormatFloat(miles, 'f', -1, 64), strings.TrimSpace(m[0]))
}

func extractSeasonStart(req *Request) slotResult {
	dates := findDates(req.Message, req.Today)
	if len(dates) == 0 {
		return missing()
	}
	return dates[0].toResult()
}

func extractSeasonEnd(req *Request) slotResult {
	dates := findDates(req.Message, req.Today)
	if len(dates) < 2 {
		return missing()
	}
	return dates[len(dates)-1].toResult()
}

// extractDescription passes the raw message through for free-text slots like
// an ad-hoc workout description.
func extractDescription(req *Request) slotResult {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return missing()
	}
	return value(msg, msg)
}
