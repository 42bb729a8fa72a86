// Package grid computes the weekday column layout and the three-tier
// merged header (month, week, day) for a report window. It is
// renderer-agnostic: the workbook writer and the HTML preview consume the
// same Plan.
package grid

import (
	"fmt"
	"time"

	"teamcal/internal/model"
)

// Span is a run of adjacent columns sharing one header label. Start and
// End are inclusive column indexes.
type Span struct {
	Label string
	Start int
	End   int
}

// Width is the number of columns the span covers.
func (s Span) Width() int { return s.End - s.Start + 1 }

// Plan is the complete layout for one window: the ordered weekday
// columns plus the merged month and week header rows above them. Week
// spans nest inside month spans: a calendar week straddling a month
// boundary appears as two week spans, one under each month, both
// carrying the same label.
type Plan struct {
	Window  model.Window
	Columns []model.Day
	Months  []Span
	Weeks   []Span
}

// Empty reports whether the window contained no weekdays at all.
func (p Plan) Empty() bool { return len(p.Columns) == 0 }

// Build lays out the window, End day included. Saturdays and Sundays are
// dropped; a window holding only weekend days yields an empty plan, not
// an error.
func Build(w model.Window) Plan {
	p := Plan{Window: w}
	for d := w.Start; !w.End.Before(d); d = d.AddDays(1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		p.Columns = append(p.Columns, d)
	}
	p.Months = runs(p.Columns, 0, MonthLabel)
	for _, m := range p.Months {
		p.Weeks = append(p.Weeks, runs(p.Columns[m.Start:m.End+1], m.Start, WeekLabel)...)
	}
	return p
}

// runs groups consecutive columns whose labels are equal. Grouping is
// strictly by adjacency, so a label recurring later in the sequence
// starts a fresh span instead of merging across the gap. offset shifts
// span indexes when cols is a sub-slice of the full column list.
func runs(cols []model.Day, offset int, label func(model.Day) string) []Span {
	var out []Span
	for i, d := range cols {
		l := label(d)
		if len(out) > 0 && out[len(out)-1].Label == l {
			out[len(out)-1].End = offset + i
			continue
		}
		out = append(out, Span{Label: l, Start: offset + i, End: offset + i})
	}
	return out
}

// WeekNumber is the Sunday-first week-of-year: days before the year's
// first Sunday belong to week 0.
func WeekNumber(d model.Day) int {
	t := d.Time(time.UTC)
	yday := t.YearDay() - 1
	return (yday + 7 - int(t.Weekday())) / 7
}

// MonthLabel renders the top header tier, e.g. "June 2026".
func MonthLabel(d model.Day) string {
	return d.Time(time.UTC).Format("January 2006")
}

// WeekLabel renders the middle header tier, e.g. "W26". The number is
// zero-padded so labels sort and align uniformly.
func WeekLabel(d model.Day) string {
	return fmt.Sprintf("W%02d", WeekNumber(d))
}

// DayLabel renders the bottom header tier, e.g. "Tue 30".
func DayLabel(d model.Day) string {
	return d.Time(time.UTC).Format("Mon 02")
}
