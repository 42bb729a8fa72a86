package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
	"teamcal/internal/roster"
)

func day(y int, m time.Month, d int) model.Day {
	return model.Day{Year: y, Month: m, Day: d}
}

func testForest() *roster.Forest {
	return roster.FromEmployees([]model.Employee{
		{
			Name:     "Alice Hart",
			Location: model.LocationUS,
			Reports: []model.Employee{
				{Name: "Bob Lefevre", Location: model.LocationFrance},
				{Name: "Carol Ng", Location: "Remote"},
			},
		},
	})
}

func testWindow() model.Window {
	return model.Window{Start: day(2024, time.January, 1), End: day(2024, time.December, 31)}
}

func TestTravelEventFansOutPerTargetPerDay(t *testing.T) {
	events := []model.RawEvent{{
		Name:  "Site Visit",
		Start: day(2024, time.March, 4),
		End:   day(2024, time.March, 7), // exclusive: three days
		Type:  model.EventTravel,
	}}
	mapping := model.Mapping{
		"Site Visit": {model.EmployeeTarget("Alice Hart"), model.EmployeeTarget("Bob Lefevre")},
	}

	res := Build(events, mapping, testForest(), testWindow())

	for _, name := range []string{"Alice Hart", "Bob Lefevre"} {
		for _, d := range []model.Day{day(2024, time.March, 4), day(2024, time.March, 5), day(2024, time.March, 6)} {
			got, ok := res.Matrix.Status(name, d)
			require.True(t, ok, "%s %s", name, d)
			assert.Equal(t, model.StatusTravel, got)
		}
		_, ok := res.Matrix.Status(name, day(2024, time.March, 7))
		assert.False(t, ok, "end date is exclusive")
	}
	assert.Len(t, res.Matrix["Alice Hart"], 3)
	assert.Len(t, res.Matrix["Bob Lefevre"], 3)
	assert.Empty(t, res.Unmatched)
}

func TestHolidayScopeAppliesByLocation(t *testing.T) {
	events := []model.RawEvent{{
		Name:  "Independence Day",
		Start: day(2024, time.July, 4),
		End:   day(2024, time.July, 5),
		Type:  model.EventPTO, // feed type is ignored for scope targets
	}}
	mapping := model.Mapping{
		"Independence Day": {model.ScopeTarget(model.ScopeUS)},
	}

	res := Build(events, mapping, testForest(), testWindow())

	got, ok := res.Matrix.Status("Alice Hart", day(2024, time.July, 4))
	require.True(t, ok)
	assert.Equal(t, model.StatusHoliday, got)

	_, ok = res.Matrix.Status("Bob Lefevre", day(2024, time.July, 4))
	assert.False(t, ok, "France employee untouched by US scope")
	_, ok = res.Matrix.Status("Carol Ng", day(2024, time.July, 4))
	assert.False(t, ok, "Other location untouched by US scope")
}

func TestCompanyScopeCoversEveryLocation(t *testing.T) {
	events := []model.RawEvent{{
		Name:  "Founders Day",
		Start: day(2024, time.May, 1),
		End:   day(2024, time.May, 2),
		Type:  model.EventPTO,
	}}
	mapping := model.Mapping{"Founders Day": {model.ScopeTarget(model.ScopeCompany)}}

	res := Build(events, mapping, testForest(), testWindow())

	for _, name := range []string{"Alice Hart", "Bob Lefevre", "Carol Ng"} {
		got, ok := res.Matrix.Status(name, day(2024, time.May, 1))
		require.True(t, ok, name)
		assert.Equal(t, model.StatusHoliday, got)
	}
}

func TestPassOrderDecidesConflicts(t *testing.T) {
	d := day(2024, time.June, 10)
	next := d.AddDays(1)
	// Input order is deliberately scrambled: holiday first, travel last.
	events := []model.RawEvent{
		{Name: "Office Closed", Start: d, End: next, Type: model.EventPTO},
		{Name: "PTO: Alice", Start: d, End: next, Type: model.EventPTO},
		{Name: "Conf Trip", Start: d, End: next, Type: model.EventTravel},
	}
	mapping := model.Mapping{
		"Office Closed": {model.ScopeTarget(model.ScopeCompany)},
		"PTO: Alice":    {model.EmployeeTarget("Alice Hart")},
		"Conf Trip":     {model.EmployeeTarget("Alice Hart")},
	}

	res := Build(events, mapping, testForest(), testWindow())

	// Passes run PTO, then Travel, then Holiday; the last pass wins
	// regardless of input order.
	got, _ := res.Matrix.Status("Alice Hart", d)
	assert.Equal(t, model.StatusHoliday, got)

	// Without the holiday, travel overwrites pto.
	res = Build(events[1:], mapping, testForest(), testWindow())
	got, _ = res.Matrix.Status("Alice Hart", d)
	assert.Equal(t, model.StatusTravel, got)
}

func TestRebuildIsIdempotent(t *testing.T) {
	events := []model.RawEvent{
		{Name: "PTO: Alice", Start: day(2024, time.June, 10), End: day(2024, time.June, 14), Type: model.EventPTO},
		{Name: "Office Closed", Start: day(2024, time.June, 12), End: day(2024, time.June, 13), Type: model.EventPTO},
	}
	mapping := model.Mapping{
		"PTO: Alice":    {model.EmployeeTarget("Alice Hart")},
		"Office Closed": {model.ScopeTarget(model.ScopeCompany)},
	}

	first := Build(events, mapping, testForest(), testWindow())
	second := Build(events, mapping, testForest(), testWindow())
	assert.Equal(t, first, second)

	// Feeding every event twice changes nothing either.
	doubled := Build(append(append([]model.RawEvent{}, events...), events...), mapping, testForest(), testWindow())
	assert.Equal(t, first.Matrix, doubled.Matrix)
}

func TestEventsOutsideWindowAreDropped(t *testing.T) {
	w := model.Window{Start: day(2024, time.June, 1), End: day(2024, time.July, 1)}
	events := []model.RawEvent{
		{Name: "PTO: Alice", Start: day(2024, time.May, 20), End: day(2024, time.June, 1), Type: model.EventPTO},
		{Name: "PTO: Alice", Start: day(2024, time.July, 1), End: day(2024, time.July, 5), Type: model.EventPTO},
	}
	mapping := model.Mapping{"PTO: Alice": {model.EmployeeTarget("Alice Hart")}}

	res := Build(events, mapping, testForest(), w)
	assert.Empty(t, res.Matrix)
	// Dropped for windowing, not for resolution.
	assert.Empty(t, res.Unmatched)
}

func TestClipToWindow(t *testing.T) {
	w := model.Window{Start: day(2024, time.June, 1), End: day(2024, time.July, 1)}
	events := []model.RawEvent{
		{Name: "before", Start: day(2024, time.May, 20), End: day(2024, time.June, 1)},
		{Name: "straddles start", Start: day(2024, time.May, 30), End: day(2024, time.June, 2)},
		{Name: "inside", Start: day(2024, time.June, 10), End: day(2024, time.June, 11)},
		{Name: "starts on end", Start: day(2024, time.July, 1), End: day(2024, time.July, 5)},
	}

	kept := ClipToWindow(events, w)

	// The live span is half-open, so an event starting exactly on the
	// window's End day is out even though End itself gets a grid column.
	require.Len(t, kept, 2)
	assert.Equal(t, "straddles start", kept[0].Name)
	assert.Equal(t, "inside", kept[1].Name)
}

func TestEventDaysClipToWindow(t *testing.T) {
	w := model.Window{Start: day(2024, time.June, 1), End: day(2024, time.July, 1)}
	events := []model.RawEvent{
		// Straddles the end: days 2024-06-30 .. 2024-07-03.
		{Name: "Long Trip", Start: day(2024, time.June, 30), End: day(2024, time.July, 4), Type: model.EventTravel},
		// Straddles the start: days 2024-05-30 .. 2024-06-01.
		{Name: "PTO: Bob", Start: day(2024, time.May, 30), End: day(2024, time.June, 2), Type: model.EventPTO},
	}
	mapping := model.Mapping{
		"Long Trip": {model.EmployeeTarget("Alice Hart")},
		"PTO: Bob":  {model.EmployeeTarget("Bob Lefevre")},
	}

	res := Build(events, mapping, testForest(), w)

	// The window's End day itself is a grid day and keeps its status.
	_, ok := res.Matrix.Status("Alice Hart", day(2024, time.June, 30))
	assert.True(t, ok)
	_, ok = res.Matrix.Status("Alice Hart", day(2024, time.July, 1))
	assert.True(t, ok)
	_, ok = res.Matrix.Status("Alice Hart", day(2024, time.July, 2))
	assert.False(t, ok)

	assert.Len(t, res.Matrix["Bob Lefevre"], 1)
	_, ok = res.Matrix.Status("Bob Lefevre", day(2024, time.June, 1))
	assert.True(t, ok)
}

func TestUnmatchedDiagnostics(t *testing.T) {
	d := day(2024, time.June, 10)
	events := []model.RawEvent{
		{Name: "Mystery Meeting", Start: d, End: d.AddDays(1), Type: model.EventPTO},
		{Name: "All Hands", Start: d, End: d.AddDays(1), Type: model.EventPTO},
		{Name: "Ghost PTO", Start: d, End: d.AddDays(1), Type: model.EventPTO},
		{Name: "PTO: Alice", Start: d, End: d.AddDays(1), Type: model.EventPTO},
	}
	mapping := model.Mapping{
		// "Mystery Meeting" is absent entirely.
		"All Hands": {},
		"Ghost PTO": {model.EmployeeTarget("Nobody Known")},
		"PTO: Alice": {
			model.EmployeeTarget("Alice Hart"),
			model.EmployeeTarget("Another Stranger"), // dropped, but Alice keeps the event usable
		},
	}

	res := Build(events, mapping, testForest(), testWindow())

	assert.Equal(t, []string{"All Hands", "Ghost PTO", "Mystery Meeting"}, res.Unmatched)

	// Unmatched events contribute nothing.
	require.Len(t, res.Matrix, 1)
	got, ok := res.Matrix.Status("Alice Hart", d)
	require.True(t, ok)
	assert.Equal(t, model.StatusPTO, got)
}

func TestMixedTargetList(t *testing.T) {
	d := day(2024, time.November, 11)
	events := []model.RawEvent{{
		Name:  "Armistice (Alice traveling)",
		Start: d,
		End:   d.AddDays(1),
		Type:  model.EventTravel,
	}}
	mapping := model.Mapping{
		"Armistice (Alice traveling)": {
			model.EmployeeTarget("Alice Hart"),
			model.ScopeTarget(model.ScopeFrance),
		},
	}

	res := Build(events, mapping, testForest(), testWindow())

	aliceGot, _ := res.Matrix.Status("Alice Hart", d)
	assert.Equal(t, model.StatusTravel, aliceGot, "employee target keeps the feed type")
	bobGot, _ := res.Matrix.Status("Bob Lefevre", d)
	assert.Equal(t, model.StatusHoliday, bobGot, "scope target always yields holiday")
}

func TestZeroLengthEventProducesNothing(t *testing.T) {
	d := day(2024, time.June, 10)
	events := []model.RawEvent{{Name: "PTO: Alice", Start: d, End: d, Type: model.EventPTO}}
	mapping := model.Mapping{"PTO: Alice": {model.EmployeeTarget("Alice Hart")}}

	res := Build(events, mapping, testForest(), testWindow())
	assert.Empty(t, res.Matrix)
	assert.Empty(t, res.Unmatched)
}

func TestNormalizeKeepsWeekends(t *testing.T) {
	// Fri Jun 7 .. Mon Jun 10 2024 inclusive of the weekend.
	e := model.RawEvent{
		Name:  "PTO: Alice",
		Start: day(2024, time.June, 7),
		End:   day(2024, time.June, 11),
		Type:  model.EventPTO,
	}

	asg := Normalize(e, []model.Target{model.EmployeeTarget("Alice Hart")}, testForest(), testWindow())

	require.Len(t, asg, 4)
	assert.Equal(t, time.Saturday, asg[1].Day.Weekday())
	assert.Equal(t, time.Sunday, asg[2].Day.Weekday())
}
