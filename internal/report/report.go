// Package report runs one end-to-end generation cycle: load the
// roster, collect feed events, resolve titles to employees, build the
// status matrix and write the workbook.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"teamcal/internal/config"
	"teamcal/internal/grid"
	"teamcal/internal/ics"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/resolve"
	"teamcal/internal/roster"
	"teamcal/internal/schedule"
	"teamcal/internal/xlsx"
)

// PreviewFilename is the PNG snapshot artifact, written next to the
// workbook and served at /preview.png.
const PreviewFilename = "preview.png"

// Report is the outcome of one run. OutputPath is empty when the run
// had nothing to render and no workbook was written.
type Report struct {
	GeneratedAt time.Time
	Window      model.Window
	Plan        grid.Plan
	Forest      *roster.Forest
	Matrix      schedule.Matrix
	Mapping     model.Mapping
	Unmatched   []string
	EventCount  int
	OutputPath  string
}

// Runner wires the pipeline stages together. It is safe to call Run
// repeatedly; every run re-reads the roster and feeds.
type Runner struct {
	cfg      *config.Config
	fetcher  *ics.Fetcher
	resolver resolve.Resolver
	now      func() time.Time
}

// NewRunner builds a Runner. resolver may be nil, in which case every
// title goes unmatched (useful when no API key is configured).
func NewRunner(cfg *config.Config, fetcher *ics.Fetcher, resolver resolve.Resolver) *Runner {
	return &Runner{cfg: cfg, fetcher: fetcher, resolver: resolver, now: time.Now}
}

// Run executes the pipeline once. An empty roster or an empty window
// ends the run early with nothing to do; feed and resolver failures
// degrade instead, so a run with unreachable sources still reports
// what it has.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := r.now()
	loc := r.location()
	today := model.DayOf(started.In(loc))
	window := model.WindowFrom(today, r.cfg.ReportWindowMonths)

	appLog.Info("report run starting",
		"window_start", window.Start.Date(),
		"window_end", window.End.Date(),
		"months", r.cfg.ReportWindowMonths,
	)

	forest := roster.Load(r.cfg.RosterPath)
	rep := &Report{
		GeneratedAt: started,
		Window:      window,
		Plan:        grid.Build(window),
		Forest:      forest,
		Matrix:      schedule.Matrix{},
	}
	if forest.Empty() {
		appLog.Warn("roster has no employees; nothing to do", "path", r.cfg.RosterPath)
		return rep, nil
	}

	events := schedule.ClipToWindow(ics.Collect(ctx, r.fetcher, Sources(r.cfg), ics.ExpandConfig{
		Window:   window,
		Location: loc,
	}), window)
	rep.EventCount = len(events)

	if len(events) == 0 {
		appLog.Warn("no events in window; skipping workbook",
			"window_start", window.Start.Date(),
			"window_end", window.End.Date(),
		)
		return rep, nil
	}

	mapping := r.resolveMapping(ctx, Titles(events), forest.Names())
	rep.Mapping = mapping

	result := schedule.Build(events, mapping, forest, window)
	rep.Matrix = result.Matrix
	rep.Unmatched = result.Unmatched
	if len(result.Unmatched) > 0 {
		appLog.Warn("events with no usable targets",
			"count", len(result.Unmatched),
			"titles", strings.Join(result.Unmatched, ", "),
		)
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: output dir %s: %w", r.cfg.OutputDir, err)
	}
	path := filepath.Join(r.cfg.OutputDir, xlsx.Filename(today))
	if err := xlsx.Write(path, rep.Plan, rep.Matrix, forest); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	rep.OutputPath = path

	appLog.Info("report run finished",
		"output", path,
		"events", len(events),
		"employees", forest.Len(),
		"unmatched", len(result.Unmatched),
		"elapsed", time.Since(started).Round(time.Millisecond).String(),
	)
	return rep, nil
}

func (r *Runner) resolveMapping(ctx context.Context, titles, employees []string) model.Mapping {
	if r.resolver == nil {
		appLog.Warn("no resolver configured; all events will be unmatched")
		return model.Mapping{}
	}
	mapping, err := r.resolver.Resolve(ctx, titles, employees)
	if err != nil {
		appLog.Error("title resolution failed; continuing with empty mapping", err)
		return model.Mapping{}
	}
	return mapping
}

func (r *Runner) location() *time.Location {
	loc, err := time.LoadLocation(r.cfg.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", r.cfg.Timezone)
		return time.Local
	}
	return loc
}

// Sources converts the configured feeds into fetchable sources,
// skipping entries without a URL.
func Sources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.URL == "" {
			continue
		}
		out = append(out, ics.Source{ID: f.ID, URL: f.URL, Type: feedType(f.Type)})
	}
	return out
}

func feedType(t string) model.EventType {
	if t == string(model.EventTravel) {
		return model.EventTravel
	}
	return model.EventPTO
}

// Titles returns the unique event titles, sorted so the resolver sees a
// stable prompt across runs.
func Titles(events []model.RawEvent) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range events {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

// debugDump is the -dump-json artifact: the resolver mapping in wire
// form plus the computed schedule.
type debugDump struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	WindowStart string                       `json:"window_start"`
	WindowEnd   string                       `json:"window_end"`
	EventCount  int                          `json:"event_count"`
	Mapping     map[string][]string          `json:"mapping"`
	Schedule    map[string]map[string]string `json:"schedule"`
	Unmatched   []string                     `json:"unmatched,omitempty"`
}

// WriteDebugJSON writes the resolver mapping and the computed schedule
// as schedule_debug.json inside dir, returning the artifact path.
func WriteDebugJSON(rep *Report, dir string) (string, error) {
	dump := debugDump{
		GeneratedAt: rep.GeneratedAt,
		WindowStart: rep.Window.Start.Date(),
		WindowEnd:   rep.Window.End.Date(),
		EventCount:  rep.EventCount,
		Mapping:     map[string][]string{},
		Schedule:    map[string]map[string]string{},
		Unmatched:   rep.Unmatched,
	}
	for title, targets := range rep.Mapping {
		tokens := make([]string, 0, len(targets))
		for _, t := range targets {
			tokens = append(tokens, t.Token())
		}
		dump.Mapping[title] = tokens
	}
	for name, days := range rep.Matrix {
		row := make(map[string]string, len(days))
		for d, st := range days {
			row[d.Date()] = string(st)
		}
		dump.Schedule[name] = row
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal debug dump: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "schedule_debug.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write debug dump: %w", err)
	}
	return path, nil
}
