package model

import (
	"fmt"
	"time"
)

// Day is a calendar date with no time-of-day and no timezone. Everything
// date-indexed in the pipeline (status matrix, grid columns) is keyed by
// Day so that map lookups cannot alias across locations or DST shifts.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf truncates a time.Time to the calendar date in its own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// Date returns the canonical date form "2006-01-02".
func (d Day) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Day) String() string { return d.Date() }

// Time expands the day to midnight in the given location (UTC if nil).
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the day n calendar days later (earlier if negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Weekday returns the day of week (time.Sunday..time.Saturday).
func (d Day) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// DaysUntil returns the count of calendar days from d to other, negative
// when other is earlier.
func (d Day) DaysUntil(other Day) int {
	return int(other.Time(time.UTC).Sub(d.Time(time.UTC)) / (24 * time.Hour))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Day) After(other Day) bool { return other.Before(d) }

func (d Day) IsZero() bool { return d == Day{} }

// MarshalText encodes the day as "2006-01-02". Day therefore serializes as
// a plain date string in JSON, including when used as a map key.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.Date()), nil
}

// UnmarshalText parses "2006-01-02".
func (d *Day) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01-02", string(b))
	if err != nil {
		return fmt.Errorf("model: bad day %q: %w", string(b), err)
	}
	*d = DayOf(t)
	return nil
}

// ParseDay parses "2006-01-02".
func ParseDay(s string) (Day, error) {
	var d Day
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// Window is the reporting range. The grid lays out every day of
// [Start, End] inclusive, while event overlap tests treat [Start, End)
// as the live span, so an event starting exactly on End is out of range
// even though End itself gets a column.
type Window struct {
	Start Day
	End   Day
}

// WindowFrom computes the report window for a run: from the first day of
// today's month, spanning months blocks of 30 days.
func WindowFrom(today Day, months int) Window {
	first := Day{Year: today.Year, Month: today.Month, Day: 1}
	return Window{Start: first, End: first.AddDays(30 * months)}
}

// Covers reports whether d falls on a grid day, End included.
func (w Window) Covers(d Day) bool {
	return !d.Before(w.Start) && !w.End.Before(d)
}

// Overlaps reports whether the half-open span [start, end) intersects
// [Start, End).
func (w Window) Overlaps(start, end Day) bool {
	return start.Before(w.End) && w.Start.Before(end)
}

// Location is where an employee sits for holiday purposes. Roster entries
// with any other value collapse to LocationOther.
type Location string

const (
	LocationUS     Location = "US"
	LocationFrance Location = "France"
	LocationOther  Location = "Other"
)

// NormalizeLocation maps free-form roster input onto the known set.
func NormalizeLocation(l Location) Location {
	switch l {
	case LocationUS, LocationFrance:
		return l
	default:
		return LocationOther
	}
}

// EventType tags a calendar feed: every event fetched from a feed carries
// the feed's type.
type EventType string

const (
	EventPTO    EventType = "pto"
	EventTravel EventType = "travel"
)

// Status converts the feed type into the status code it produces.
func (t EventType) Status() StatusCode {
	if t == EventTravel {
		return StatusTravel
	}
	return StatusPTO
}

// StatusCode is the per-employee per-day attendance marker. Absence of a
// matrix entry means "present" and renders as an unfilled cell.
type StatusCode string

const (
	StatusPTO     StatusCode = "pto"
	StatusTravel  StatusCode = "travel"
	StatusHoliday StatusCode = "holiday"
)

// RawEvent is one calendar entry after feed fetch and recurrence
// expansion: a title, a date span, and the owning feed's type. End is an
// exclusive bound. The event covers [Start, End), so a one-day event has
// End == Start.AddDays(1).
type RawEvent struct {
	Name  string
	Start Day
	End   Day
	Type  EventType
}

// Days enumerates every calendar day the event covers, weekends included.
// Weekday filtering belongs to the grid layout, not to event expansion.
func (e RawEvent) Days() []Day {
	var out []Day
	for d := e.Start; d.Before(e.End); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// HolidayScope is the audience of a holiday-classified event.
type HolidayScope string

const (
	ScopeUS      HolidayScope = "US"
	ScopeFrance  HolidayScope = "France"
	ScopeCompany HolidayScope = "Company"
)

// Resolver wire tokens for holiday scopes, as emitted by the external name
// resolver.
const (
	TokenHolidayUS      = "_HOLIDAY_US"
	TokenHolidayFrance  = "_HOLIDAY_FRANCE"
	TokenHolidayCompany = "_HOLIDAY_COMPANY"
)

// Target is one resolved destination for an event title: either a single
// employee by name, or a holiday scope that fans out across the roster by
// location. Exactly one of the two fields is set.
type Target struct {
	Employee string
	Scope    HolidayScope
}

// EmployeeTarget builds a target addressing one employee.
func EmployeeTarget(name string) Target { return Target{Employee: name} }

// ScopeTarget builds a target addressing a holiday scope.
func ScopeTarget(s HolidayScope) Target { return Target{Scope: s} }

// IsScope reports whether the target is a holiday scope.
func (t Target) IsScope() bool { return t.Scope != "" }

// Token returns the resolver wire form: the employee name, or the
// holiday marker for scope targets.
func (t Target) Token() string {
	switch t.Scope {
	case ScopeUS:
		return TokenHolidayUS
	case ScopeFrance:
		return TokenHolidayFrance
	case ScopeCompany:
		return TokenHolidayCompany
	}
	return t.Employee
}

// ScopeFromToken maps a resolver wire token to its holiday scope.
func ScopeFromToken(tok string) (HolidayScope, bool) {
	switch tok {
	case TokenHolidayUS:
		return ScopeUS, true
	case TokenHolidayFrance:
		return ScopeFrance, true
	case TokenHolidayCompany:
		return ScopeCompany, true
	}
	return "", false
}

// Mapping is the resolver output: event title to resolved targets. A
// title may fan out to several targets (joint events) and titles the
// resolver could not place are simply absent.
type Mapping map[string][]Target

// Employee is one node of the roster tree as stored on disk.
type Employee struct {
	Name     string     `json:"name"`
	Location Location   `json:"location"`
	Reports  []Employee `json:"reports,omitempty"`
}
