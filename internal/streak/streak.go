// Package streak derives streak figures from a habit's completion history.
//
// A day is a time.Time at midnight UTC of a civil date. Callers convert wall
// clock times with Day before handing them in; every function here tolerates
// unsorted input and duplicate days.
package streak

import (
	"slices"
	"time"
)

const layout = "2006-01-02"

// Day returns the civil date of t as seen in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(layout, s, time.UTC)
}

func Format(d time.Time) string {
	return d.Format(layout)
}

// Normalize returns the unique days of history, most recent first.
func Normalize(days []time.Time) []time.Time {
	uniq := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		uniq[Day(d, time.UTC)] = struct{}{}
	}
	out := make([]time.Time, 0, len(uniq))
	for d := range uniq {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return b.Compare(a) })
	return out
}

func consecutive(later, earlier time.Time) bool {
	return later.AddDate(0, 0, -1).Equal(earlier)
}

// Run counts consecutive days backwards from the most recent completion.
func Run(days []time.Time) int {
	return run(Normalize(days))
}

// run expects normalized input.
func run(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	n := 1
	for i := 1; i < len(days); i++ {
		if !consecutive(days[i-1], days[i]) {
			break
		}
		n++
	}
	return n
}

// Current is the run still alive on today: the most recent completion must be
// today or yesterday. Completions after today are ignored.
func Current(days []time.Time, today time.Time) int {
	today = Day(today, time.UTC)
	norm := Normalize(days)
	for len(norm) > 0 && norm[0].After(today) {
		norm = norm[1:]
	}
	if len(norm) == 0 {
		return 0
	}
	if !norm[0].Equal(today) && !consecutive(today, norm[0]) {
		return 0
	}
	return run(norm)
}

func Longest(days []time.Time) int {
	norm := Normalize(days)
	if len(norm) == 0 {
		return 0
	}
	longest, cur := 1, 1
	for i := 1; i < len(norm); i++ {
		if consecutive(norm[i-1], norm[i]) {
			cur++
			longest = max(longest, cur)
		} else {
			cur = 1
		}
	}
	return longest
}

type Summary struct {
	Current   int
	Longest   int
	Total     int
	First     time.Time
	Last      time.Time
	ThisMonth int
	BestMonth int
}

func Summarize(days []time.Time, today time.Time) Summary {
	today = Day(today, time.UTC)
	norm := Normalize(days)
	if len(norm) == 0 {
		return Summary{}
	}

	s := Summary{
		Current: Current(norm, today),
		Longest: Longest(norm),
		Total:   len(norm),
		First:   norm[len(norm)-1],
		Last:    norm[0],
	}

	perMonth := make(map[time.Time]int)
	for _, d := range norm {
		month := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		perMonth[month]++
	}
	for _, n := range perMonth {
		s.BestMonth = max(s.BestMonth, n)
	}
	s.ThisMonth = perMonth[time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)]
	return s
}

// Window returns the last n days ending on today, oldest first.
func Window(today time.Time, n int) []time.Time {
	today = Day(today, time.UTC)
	out := make([]time.Time, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, today.AddDate(0, 0, -i))
	}
	return out
}
