package analytics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultWindowDays is the window used when a question carries no time
// phrase: the last 30 days, ending at query time. This default is part of
// the engine's contract and must stay stable.
const DefaultWindowDays = 30

var (
	lastNDaysPattern  = regexp.MustCompile(`\b(?:last|past|previous) (\d+) days?\b`)
	lastNHoursPattern = regexp.MustCompile(`\b(?:last|past|previous) (\d+) hours?\b`)
	lastNWeeksPattern = regexp.MustCompile(`\b(?:last|past|previous) (\d+) weeks?\b`)
)

// Month and weekday names are matched by their position in the question, so
// a question naming two periods ("compare january to february") always
// resolves the first-named one as the primary window.
var monthNames = []struct {
	name  string
	month time.Month
}{
	{"january", time.January}, {"february", time.February}, {"march", time.March},
	{"april", time.April}, {"may", time.May}, {"june", time.June},
	{"july", time.July}, {"august", time.August}, {"september", time.September},
	{"october", time.October}, {"november", time.November}, {"december", time.December},
}

var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday}, {"tuesday", time.Tuesday}, {"wednesday", time.Wednesday},
	{"thursday", time.Thursday}, {"friday", time.Friday}, {"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

// resolveWindow turns a time phrase in the question into a concrete
// [start, end) interval anchored at now. Returns explicit=false when no
// phrase was found and the default window was applied. Resolution is
// deterministic: the same question and the same now always produce the same
// interval.
func resolveWindow(question string, now time.Time, defaultWindow time.Duration) (TimeRange, bool) {
	q := strings.ToLower(question)
	sod := startOfDay(now)

	switch {
	case strings.Contains(q, "today"):
		return TimeRange{Start: sod, End: now}, true
	case strings.Contains(q, "yesterday"):
		return TimeRange{Start: sod.AddDate(0, 0, -1), End: sod}, true
	case strings.Contains(q, "this week"):
		return TimeRange{Start: startOfWeek(now), End: now}, true
	case strings.Contains(q, "last week"):
		sow := startOfWeek(now)
		return TimeRange{Start: sow.AddDate(0, 0, -7), End: sow}, true
	case strings.Contains(q, "this month"):
		return TimeRange{Start: startOfMonth(now), End: now}, true
	case strings.Contains(q, "last month"):
		som := startOfMonth(now)
		return TimeRange{Start: som.AddDate(0, -1, 0), End: som}, true
	case strings.Contains(q, "this year"):
		return TimeRange{Start: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), End: now}, true
	}

	if m := lastNHoursPattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return TimeRange{Start: now.Add(-time.Duration(n) * time.Hour), End: now}, true
	}
	if m := lastNDaysPattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return TimeRange{Start: sod.AddDate(0, 0, -n), End: now}, true
	}
	if m := lastNWeeksPattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return TimeRange{Start: sod.AddDate(0, 0, -7*n), End: now}, true
	}

	// Month names resolve to the most recent occurrence that has started:
	// "january" asked in March 2026 means January 2026; asked in January it
	// means the month so far.
	if months := monthMentions(q); len(months) > 0 {
		return monthWindow(months[0], now), true
	}

	// Weekday names resolve to the most recent such day, today included.
	if weekday, ok := firstWeekdayMention(q); ok {
		daysBack := int(now.Weekday()-weekday+7) % 7
		start := sod.AddDate(0, 0, -daysBack)
		end := start.AddDate(0, 0, 1)
		if end.After(now) {
			end = now
		}
		return TimeRange{Start: start, End: end}, true
	}

	return TimeRange{Start: now.Add(-defaultWindow), End: now}, false
}

// monthMentions returns every month named in the question, ordered by where
// it appears in the text.
func monthMentions(q string) []time.Month {
	type mention struct {
		pos   int
		month time.Month
	}
	var found []mention
	for _, m := range monthNames {
		if idx := wordIndex(q, m.name); idx >= 0 {
			found = append(found, mention{idx, m.month})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	out := make([]time.Month, len(found))
	for i, f := range found {
		out[i] = f.month
	}
	return out
}

// firstWeekdayMention returns the weekday named earliest in the question.
func firstWeekdayMention(q string) (time.Weekday, bool) {
	best := -1
	var day time.Weekday
	for _, w := range weekdayNames {
		if idx := wordIndex(q, w.name); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			day = w.day
		}
	}
	return day, best >= 0
}

// monthWindow is the most recent started occurrence of the month, clamped at
// now when the month is still running.
func monthWindow(month time.Month, now time.Time) TimeRange {
	year := now.Year()
	if month > now.Month() {
		year--
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)
	if end.After(now) {
		end = now
	}
	return TimeRange{Start: start, End: end}
}

// previousWindow returns the window of the same length immediately before w,
// used as the implicit second window for comparisons ("this week vs last
// week" resolves both explicitly; "how does this month compare" gets the
// preceding month-length window).
func previousWindow(w TimeRange) TimeRange {
	return TimeRange{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// resolveCompareWindow picks the second window for a comparison question.
// If the question names a second period explicitly and it differs from the
// primary window, that period wins; otherwise the comparison is against the
// window of equal length immediately preceding the primary one.
func resolveCompareWindow(question string, primary TimeRange, now time.Time) TimeRange {
	q := strings.ToLower(question)
	sod := startOfDay(now)
	sow := startOfWeek(now)
	som := startOfMonth(now)

	// Two named months: the second one is the comparison window.
	if months := monthMentions(q); len(months) >= 2 {
		if w := monthWindow(months[1], now); !w.Start.Equal(primary.Start) {
			return w
		}
	}

	switch {
	case strings.Contains(q, "last week") && !primary.Start.Equal(sow.AddDate(0, 0, -7)):
		return TimeRange{Start: sow.AddDate(0, 0, -7), End: sow}
	case strings.Contains(q, "last month") && !primary.Start.Equal(som.AddDate(0, -1, 0)):
		return TimeRange{Start: som.AddDate(0, -1, 0), End: som}
	case strings.Contains(q, "yesterday") && !primary.Start.Equal(sod.AddDate(0, 0, -1)):
		return TimeRange{Start: sod.AddDate(0, 0, -1), End: sod}
	}
	return previousWindow(primary)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the most recent Monday 00:00.
func startOfWeek(t time.Time) time.Time {
	sod := startOfDay(t)
	daysBack := int(t.Weekday()-time.Monday+7) % 7
	return sod.AddDate(0, 0, -daysBack)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// wordIndex returns the position of the first whole-word occurrence of word
// in s, or -1.
func wordIndex(s, word string) int {
	idx := strings.Index(s, word)
	for idx >= 0 {
		beforeOK := idx == 0 || !isLetter(s[idx-1])
		afterIdx := idx + len(word)
		afterOK := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if beforeOK && afterOK {
			return idx
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
