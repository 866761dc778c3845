package conversation

import (
	"strings"
	"time"
	"unicode"
)

// Filter is a read-only projection over the log: a case-insensitive text
// search combined with an inclusive, day-granular date range. Zero values
// mean "no constraint".
type Filter struct {
	SearchTerm string
	StartDate  time.Time
	EndDate    time.Time
}

// Active reports whether any constraint is set.
func (f Filter) Active() bool {
	return f.SearchTerm != "" || !f.StartDate.IsZero() || !f.EndDate.IsZero()
}

// Project returns the messages matching the filter, preserving order. The
// underlying log is never mutated; an empty filter is the identity.
func Project(log []Message, f Filter) []Message {
	if !f.Active() {
		out := make([]Message, len(log))
		copy(out, log)
		return out
	}

	term := strings.ToLower(f.SearchTerm)
	var out []Message
	for _, m := range log {
		if term != "" && !strings.Contains(strings.ToLower(m.Text), term) {
			continue
		}
		if !matchesDateRange(m.CreatedAt, f.StartDate, f.EndDate) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// matchesDateRange compares at day granularity: both bounds are inclusive of
// the whole day they name.
func matchesDateRange(t, start, end time.Time) bool {
	day := truncateDay(t)
	if !start.IsZero() && day.Before(truncateDay(start)) {
		return false
	}
	if !end.IsZero() && day.After(truncateDay(end)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Segment is a run of text that either matched the search term or didn't.
type Segment struct {
	Text  string
	Match bool
}

// Highlight splits text into segments around non-overlapping, leftmost,
// case-insensitive occurrences of term. A blank term yields the whole text
// as one non-matching segment.
func Highlight(text, term string) []Segment {
	if strings.TrimSpace(term) == "" {
		return []Segment{{Text: text}}
	}

	// Compare rune by rune: lowercasing can change a rune's UTF-8 byte
	// length, so byte offsets into a lowered copy don't map back to text.
	runes := []rune(text)
	termRunes := []rune(strings.ToLower(term))

	var segs []Segment
	segStart := 0
	for i := 0; i+len(termRunes) <= len(runes); {
		if !matchesFold(runes, termRunes, i) {
			i++
			continue
		}
		if i > segStart {
			segs = append(segs, Segment{Text: string(runes[segStart:i])})
		}
		segs = append(segs, Segment{Text: string(runes[i : i+len(termRunes)]), Match: true})
		i += len(termRunes)
		segStart = i
	}
	if segStart < len(runes) {
		segs = append(segs, Segment{Text: string(runes[segStart:])})
	}
	return segs
}

func matchesFold(runes, lowerTerm []rune, at int) bool {
	for j, r := range lowerTerm {
		if unicode.ToLower(runes[at+j]) != r {
			return false
		}
	}
	return true
}

// AutoScroll reports whether the view should follow new messages: suppressed
// while any filter is active or the initial history load is still pending.
func AutoScroll(f Filter, initialLoadPending bool) bool {
	return !f.Active() && !initialLoadPending
}
