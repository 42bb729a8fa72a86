package ics

import (
	"context"
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Window is the report range; occurrences whose day span does not
	// overlap its live span are dropped here rather than downstream.
	Window model.Window

	// Location is the timezone used to truncate timed occurrences to
	// calendar dates. If nil, time.Local is used. All-day values keep
	// their own date regardless.
	Location *time.Location

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or
	// extremely large expansions. If zero, a default of 5000 is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded raw events and optionally information
// about truncation.
type ExpandResult struct {
	Events []model.RawEvent
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// Expand takes parsed VEVENTs (typically for one feed) and expands them
// into date-span raw events within the window. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Every resulting event carries the feed's type and a half-open
// [Start, End) day span: a timed occurrence contained in one calendar
// day has a zero-length span and is invisible downstream, matching the
// date-level view this pipeline takes.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Window.End.Before(cfg.Window.Start) {
		return result, errors.New("expand: window end is before start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	all := make([]model.RawEvent, 0)

	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			raw, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			all = append(all, raw...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = all
	return result, nil
}

// expandEvent expands a single base event with its possible overrides,
// returning raw events and whether the cap was hit.
func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawEvent, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.RawEvent {
	baseStart := ev.Start
	baseEnd := ev.End

	// Apply any override whose RECURRENCE-ID matches this start.
	if o, ok := findOverrideForStart(overrides, baseStart, ev.AllDay); ok {
		baseStart = o.Start
		baseEnd = o.End
		ev = o
	}

	raw, ok := toRawEvent(ev, baseStart, baseEnd, cfg)
	if !ok {
		return nil
	}
	return []model.RawEvent{raw}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawEvent, bool) {
	out := make([]model.RawEvent, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}

	// Ensure Dtstart is set to the event's DTSTART.
	r.DTStart(ev.Start)

	// Build a set so we can apply EXDATE.
	var set rrule.Set
	set.RRule(r)

	// All-day exceptions are dates, so they are excluded by calendar
	// date; instant equality would silently depend on which zone the
	// parser assigned to VALUE=DATE values. Timed exceptions keep exact
	// instant matching via the rule set.
	exDays := map[model.Day]bool{}
	for _, ex := range ev.ExDates {
		if ev.AllDay {
			exDays[model.DayOf(ex)] = true
			continue
		}
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Iterate a day beyond each window edge; the day-level overlap check
	// in toRawEvent is the precise filter, this range only has to not
	// lose edge occurrences to zone skew.
	rangeStart := cfg.Window.Start.AddDays(-1).Time(cfg.Location).In(ev.Start.Location())
	rangeEnd := cfg.Window.End.AddDays(2).Time(cfg.Location).In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		if ev.AllDay && exDays[model.DayOf(occStart)] {
			continue
		}
		var occEnd time.Time
		if ev.AllDay {
			// All-day: [date, date+durDays) in the event's zone. Duration
			// counts calendar days so DST shifts cannot shorten a span; a
			// missing DTEND means one day.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			durDays := 1
			if ev.End.After(ev.Start) {
				durDays = model.DayOf(ev.Start).DaysUntil(model.DayOf(ev.End))
			}
			occEnd = date.AddDate(0, 0, durDays)
		} else {
			// Preserve original duration.
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		baseStart := occStart
		baseEnd := occEnd
		baseEv := ev

		if o, ok := findOverrideForStart(overrides, occStart, ev.AllDay); ok {
			baseStart = o.Start
			baseEnd = o.End
			baseEv = o
		}

		if raw, ok := toRawEvent(baseEv, baseStart, baseEnd, cfg); ok {
			out = append(out, raw)
		}
	}

	return out, hitCap
}

// findOverrideForStart finds an override event whose RECURRENCE-ID
// matches the given baseStart. All-day instances match by calendar date,
// timed instances by exact instant.
func findOverrideForStart(overrides []ParsedEvent, baseStart time.Time, allDay bool) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if allDay {
			if model.DayOf(*ov.Recurrence) == model.DayOf(baseStart) {
				return ov, true
			}
			continue
		}
		if ov.Recurrence.Equal(baseStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toRawEvent converts a (possibly overridden) event plus concrete
// start/end times into a date-span raw event. Events with no summary
// have nothing to resolve against and are dropped, as are events whose
// day span misses the window.
func toRawEvent(ev ParsedEvent, start, end time.Time, cfg ExpandConfig) (model.RawEvent, bool) {
	if ev.Summary == "" {
		return model.RawEvent{}, false
	}

	var s, e model.Day
	if ev.AllDay {
		// All-day values are already dates; DTEND is exclusive per the
		// format. A missing or non-advancing DTEND means one day.
		s = model.DayOf(start)
		e = model.DayOf(end)
		if !s.Before(e) {
			e = s.AddDays(1)
		}
	} else {
		s = model.DayOf(start.In(cfg.Location))
		e = model.DayOf(end.In(cfg.Location))
	}

	if !cfg.Window.Overlaps(s, e) {
		return model.RawEvent{}, false
	}

	return model.RawEvent{
		Name:  ev.Summary,
		Start: s,
		End:   e,
		Type:  ev.Source.Type,
	}, true
}

// Collect fetches, parses, and expands every source into raw events
// tagged with each feed's type. Per-feed failures degrade to zero events
// for that feed; the run continues with whatever arrived.
func Collect(ctx context.Context, fetcher *Fetcher, sources []Source, cfg ExpandConfig) []model.RawEvent {
	results, _ := fetcher.FetchAll(ctx, sources)

	var all []model.RawEvent
	for _, res := range results {
		parsed, err := ParseICS(res.Source, res.Body)
		if err != nil {
			continue
		}
		expanded, err := Expand(parsed, cfg)
		if err != nil {
			appLog.Error("feed expand failed", err, "id", res.Source.ID)
			continue
		}
		all = append(all, expanded.Events...)
	}
	return all
}
