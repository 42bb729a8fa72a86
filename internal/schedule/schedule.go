// Package schedule turns raw calendar events plus the resolver mapping
// into the per-employee per-day status matrix. The work happens in three
// steps: each event is normalized into (employee, day, status) triples,
// holiday scopes fan out across the roster by location, and the triples
// are applied in a fixed pass order with unconditional overwrite.
package schedule

import (
	"sort"

	"teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/roster"
)

// Matrix is the status lookup keyed by employee name, then day. Keys
// exist only for days with a status; absence means present.
type Matrix map[string]map[model.Day]model.StatusCode

// Status looks up one cell.
func (m Matrix) Status(name string, d model.Day) (model.StatusCode, bool) {
	days, ok := m[name]
	if !ok {
		return "", false
	}
	s, ok := days[d]
	return s, ok
}

func (m Matrix) set(a Assignment) {
	days, ok := m[a.Employee]
	if !ok {
		days = map[model.Day]model.StatusCode{}
		m[a.Employee] = days
	}
	if old, exists := days[a.Day]; exists && old != a.Status {
		// The pass order makes the last writer win. Surface the loss so
		// a day that is both travel and holiday is at least traceable.
		log.Debug("status overwritten",
			"employee", a.Employee, "day", a.Day, "old", old, "new", a.Status)
	}
	days[a.Day] = a.Status
}

// Assignment is one normalized triple.
type Assignment struct {
	Employee string
	Day      model.Day
	Status   model.StatusCode
}

// Result is the built matrix plus run diagnostics.
type Result struct {
	Matrix Matrix
	// Unmatched lists event titles that produced no usable target:
	// absent from the mapping, mapped to an empty list, or mapped only
	// to names missing from the roster. Sorted, unique.
	Unmatched []string
}

// ClipToWindow drops events with no overlap with the window's live span
// [Start, End). Day-level clipping of the survivors happens later in
// Normalize; this only decides admission.
func ClipToWindow(events []model.RawEvent, w model.Window) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(events))
	for _, e := range events {
		if w.Overlaps(e.Start, e.End) {
			out = append(out, e)
		}
	}
	return out
}

// Build runs the full pipeline over all events. Events that do not
// overlap the window's live span [Start, End) are dropped before
// normalization.
func Build(events []model.RawEvent, mapping model.Mapping, f *roster.Forest, w model.Window) Result {
	var pto, travel, holiday []Assignment
	unmatched := map[string]bool{}

	for _, e := range ClipToWindow(events, w) {
		targets, known := mapping[e.Name]
		usable := UsableTargets(e.Name, targets, f)
		if !known || len(usable) == 0 {
			unmatched[e.Name] = true
			continue
		}

		for _, a := range Normalize(e, usable, f, w) {
			switch a.Status {
			case model.StatusPTO:
				pto = append(pto, a)
			case model.StatusTravel:
				travel = append(travel, a)
			case model.StatusHoliday:
				holiday = append(holiday, a)
			}
		}
	}

	m := Matrix{}
	for _, a := range pto {
		m.set(a)
	}
	for _, a := range travel {
		m.set(a)
	}
	for _, a := range holiday {
		m.set(a)
	}

	names := make([]string, 0, len(unmatched))
	for n := range unmatched {
		names = append(names, n)
	}
	sort.Strings(names)

	return Result{Matrix: m, Unmatched: names}
}

// UsableTargets filters a resolved target list down to targets the run
// can act on: holiday scopes pass through, employee names must exist in
// the roster. Dropped names are logged, not errors; the resolver is an
// unreliable oracle.
func UsableTargets(title string, targets []model.Target, f *roster.Forest) []model.Target {
	var out []model.Target
	for _, t := range targets {
		if !t.IsScope() && !f.Has(t.Employee) {
			log.Debug("resolver named an unknown employee",
				"title", title, "employee", t.Employee)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Normalize expands one event into assignments: one per covered day per
// resolved target. Days run over [Start, End) of the event, clipped to
// the window's grid range; weekends stay in (the grid drops them later).
// Employee targets take the event's own status, holiday scopes fan out
// by location and always produce Holiday regardless of the feed the
// event came from.
func Normalize(e model.RawEvent, targets []model.Target, f *roster.Forest, w model.Window) []Assignment {
	var out []Assignment
	for d := e.Start; d.Before(e.End); d = d.AddDays(1) {
		if !w.Covers(d) {
			continue
		}
		for _, t := range targets {
			if t.IsScope() {
				for _, name := range f.InScope(t.Scope) {
					out = append(out, Assignment{Employee: name, Day: d, Status: model.StatusHoliday})
				}
				continue
			}
			out = append(out, Assignment{Employee: t.Employee, Day: d, Status: e.Type.Status()})
		}
	}
	return out
}
