package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/config"
	"teamcal/internal/ics"
	"teamcal/internal/model"
	"teamcal/internal/resolve"
)

const rosterJSON = `[
  {"name": "Alice Hart", "location": "US", "reports": [
    {"name": "Bob Lefevre", "location": "France"}
  ]},
  {"name": "Carol Ng", "location": "Remote"}
]`

type stubResolver struct {
	mapping      model.Mapping
	err          error
	gotTitles    []string
	gotEmployees []string
}

func (s *stubResolver) Resolve(_ context.Context, titles, employees []string) (model.Mapping, error) {
	s.gotTitles = titles
	s.gotEmployees = employees
	if s.err != nil {
		return nil, s.err
	}
	return s.mapping, nil
}

func day(y int, m time.Month, d int) model.Day {
	return model.DayOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func icsBody(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func icsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, feeds []config.FeedConfig) *config.Config {
	t.Helper()
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "employees.json")
	require.NoError(t, os.WriteFile(rosterPath, []byte(rosterJSON), 0o600))

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.RosterPath = rosterPath
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Feeds = feeds
	return cfg
}

// Runs are pinned to Mon 2026-06-15, so the window is Jun 1 .. Nov 28
// 2026 and the workbook is calendar_view_061526.xlsx.
func testRunner(t *testing.T, cfg *config.Config, resolver resolve.Resolver) *Runner {
	t.Helper()
	fetcher, err := ics.NewFetcher(filepath.Join(t.TempDir(), "cache"), "")
	require.NoError(t, err)

	r := NewRunner(cfg, fetcher, resolver)
	r.now = func() time.Time { return time.Date(2026, time.June, 15, 8, 0, 0, 0, time.UTC) }
	return r
}

func alicePTOFeed(t *testing.T) []config.FeedConfig {
	t.Helper()
	srv := icsServer(t, icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//teamcal//EN",
		"BEGIN:VEVENT",
		"UID:pto-alice-1",
		"SUMMARY:PTO: Alice Hart",
		"DTSTART;VALUE=DATE:20260610",
		"DTEND;VALUE=DATE:20260612",
		"END:VEVENT",
		"END:VCALENDAR",
	))
	return []config.FeedConfig{{URL: srv.URL, ID: "pto", Type: "pto"}}
}

func TestRunMissingRosterIsNothingToDo(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.RosterPath = filepath.Join(t.TempDir(), "absent.json")

	rep, err := testRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	// A missing roster degrades to an empty one, not an error exit.
	assert.True(t, rep.Forest.Empty())
	assert.Empty(t, rep.OutputPath)
	assert.False(t, rep.Plan.Empty(), "layout still produced for the preview server")
}

func TestRunEmptyRosterIsNothingToDo(t *testing.T) {
	cfg := testConfig(t, nil)
	require.NoError(t, os.WriteFile(cfg.RosterPath, []byte(`[]`), 0o600))

	rep, err := testRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Forest.Empty())
	assert.Empty(t, rep.OutputPath)
	assert.Zero(t, rep.EventCount)
}

func TestRunNoEventsSkipsWorkbook(t *testing.T) {
	cfg := testConfig(t, nil)

	rep, err := testRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rep.OutputPath)
	assert.Zero(t, rep.EventCount)
	assert.Empty(t, rep.Matrix)
	// The layout is still produced for the preview server.
	assert.False(t, rep.Plan.Empty())

	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunWritesWorkbook(t *testing.T) {
	cfg := testConfig(t, alicePTOFeed(t))
	resolver := &stubResolver{mapping: model.Mapping{
		"PTO: Alice Hart": {model.EmployeeTarget("Alice Hart")},
	}}

	rep, err := testRunner(t, cfg, resolver).Run(context.Background())
	require.NoError(t, err)

	want := filepath.Join(cfg.OutputDir, "calendar_view_061526.xlsx")
	assert.Equal(t, want, rep.OutputPath)
	_, statErr := os.Stat(want)
	require.NoError(t, statErr)

	assert.Equal(t, 1, rep.EventCount)
	assert.Empty(t, rep.Unmatched)

	for _, d := range []model.Day{day(2026, time.June, 10), day(2026, time.June, 11)} {
		got, ok := rep.Matrix.Status("Alice Hart", d)
		require.True(t, ok, d.Date())
		assert.Equal(t, model.StatusPTO, got)
	}
	_, ok := rep.Matrix.Status("Alice Hart", day(2026, time.June, 12))
	assert.False(t, ok)

	assert.Equal(t, []string{"PTO: Alice Hart"}, resolver.gotTitles)
	assert.Equal(t, []string{"Alice Hart", "Bob Lefevre", "Carol Ng"}, resolver.gotEmployees)
}

func TestRunResolverErrorDegrades(t *testing.T) {
	cfg := testConfig(t, alicePTOFeed(t))
	resolver := &stubResolver{err: errors.New("api down")}

	rep, err := testRunner(t, cfg, resolver).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"PTO: Alice Hart"}, rep.Unmatched)
	assert.Empty(t, rep.Matrix)
	// The workbook is still written; it just has no filled cells.
	_, statErr := os.Stat(rep.OutputPath)
	assert.NoError(t, statErr)
}

func TestRunWithoutResolver(t *testing.T) {
	cfg := testConfig(t, alicePTOFeed(t))

	rep, err := testRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"PTO: Alice Hart"}, rep.Unmatched)
	assert.NotEmpty(t, rep.OutputPath)
}

func TestTitlesSortedUnique(t *testing.T) {
	events := []model.RawEvent{
		{Name: "Zeta Offsite"},
		{Name: "Alpha PTO"},
		{Name: "Zeta Offsite"},
		{Name: "Midyear Break"},
	}
	assert.Equal(t, []string{"Alpha PTO", "Midyear Break", "Zeta Offsite"}, Titles(events))
}

func TestSources(t *testing.T) {
	cfg := &config.Config{Feeds: []config.FeedConfig{
		{URL: "https://cal.example.com/pto.ics", ID: "pto", Type: "pto"},
		{URL: "", ID: "ghost", Type: "pto"},
		{URL: "https://cal.example.com/travel.ics", ID: "travel", Type: "travel"},
	}}

	srcs := Sources(cfg)
	require.Len(t, srcs, 2)
	assert.Equal(t, "pto", srcs[0].ID)
	assert.Equal(t, model.EventPTO, srcs[0].Type)
	assert.Equal(t, model.EventTravel, srcs[1].Type)
}

func TestWriteDebugJSON(t *testing.T) {
	cfg := testConfig(t, alicePTOFeed(t))
	resolver := &stubResolver{mapping: model.Mapping{
		"PTO: Alice Hart": {model.EmployeeTarget("Alice Hart")},
		"Bastille Day":    {model.ScopeTarget(model.ScopeFrance)},
	}}

	rep, err := testRunner(t, cfg, resolver).Run(context.Background())
	require.NoError(t, err)

	path, err := WriteDebugJSON(rep, cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "schedule_debug.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var dump struct {
		WindowStart string                       `json:"window_start"`
		Mapping     map[string][]string          `json:"mapping"`
		Schedule    map[string]map[string]string `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(data, &dump))

	assert.Equal(t, "2026-06-01", dump.WindowStart)
	// Targets round-trip to resolver wire tokens.
	assert.Equal(t, []string{"Alice Hart"}, dump.Mapping["PTO: Alice Hart"])
	assert.Equal(t, []string{"_HOLIDAY_FRANCE"}, dump.Mapping["Bastille Day"])
	assert.Equal(t, "pto", dump.Schedule["Alice Hart"]["2026-06-10"])
}
