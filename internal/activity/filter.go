package activity

import "time"

// TypeFlags enables or disables event types in the filtered view. Records
// whose type is not PUSH, PULL_REQUEST or ISSUE are governed by Other.
type TypeFlags struct {
	Push        bool `json:"push"`
	PullRequest bool `json:"pullRequest"`
	Issue       bool `json:"issue"`
	Other       bool `json:"other"`
}

// DefaultTypeFlags matches the event log's initial state: the three known
// types on, everything else off.
func DefaultTypeFlags() TypeFlags {
	return TypeFlags{Push: true, PullRequest: true, Issue: true}
}

func (f TypeFlags) allows(eventType string) bool {
	switch eventType {
	case TypePush:
		return f.Push
	case TypePullRequest:
		return f.PullRequest
	case TypeIssue:
		return f.Issue
	default:
		return f.Other
	}
}

// Day is a calendar-day identity in local time.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf extracts the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	year, month, day := t.In(loc).Date()
	return Day{Year: year, Month: month, Day: day}
}

// ParseDay parses a "YYYY-MM-DD" value as a local calendar date. Parsing
// through time.Parse with a UTC location would shift the day for negative
// offsets, so the components are read directly.
func ParseDay(value string) (Day, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return Day{}, err
	}
	year, month, day := t.Date()
	return Day{Year: year, Month: month, Day: day}, nil
}

// Key renders the canonical "YYYY-MM-DD" form.
func (d Day) Key() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// Criteria composes the event log predicates. A nil SelectedDate disables
// the date predicate and shows the whole window.
type Criteria struct {
	RepositoryID string
	Types        TypeFlags
	SelectedDate *Day
	Location     *time.Location
}

// Matches applies the predicates in order: repository, type flags, local
// calendar day.
func (c Criteria) Matches(record Record) bool {
	if c.RepositoryID != "" && record.RepositoryID != c.RepositoryID {
		return false
	}
	if !c.Types.allows(record.Type) {
		return false
	}
	if c.SelectedDate != nil {
		loc := c.Location
		if loc == nil {
			loc = time.Local
		}
		if !record.OnLocalDay(c.SelectedDate.Year, c.SelectedDate.Month, c.SelectedDate.Day, loc) {
			return false
		}
	}
	return true
}

// Filter returns the records matching the criteria, preserving input order.
// Pure: the input slice is never mutated.
func Filter(records []Record, criteria Criteria) []Record {
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if criteria.Matches(record) {
			out = append(out, record)
		}
	}
	return out
}

// DistinctActors counts the unique authors across the given records.
func DistinctActors(records []Record) int {
	seen := make(map[string]struct{})
	for _, record := range records {
		seen[record.ActorLabel()] = struct{}{}
	}
	return len(seen)
}
