// Package web serves the schedule preview: a JSON API, a server-side
// rendered HTML calendar used by the snapshot capturer, and the
// generated workbook for download.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"teamcal/internal/config"
	"teamcal/internal/grid"
	appLog "teamcal/internal/log"
	"teamcal/internal/report"
)

// Server exposes the latest report over HTTP. Reports are produced on
// demand and cached briefly so a page load does not trigger a feed
// fetch per request; the cron loop refreshes the cache eagerly via
// SetReport.
type Server struct {
	cfg    *config.Config
	runner *report.Runner
	mux    *http.ServeMux

	mu    sync.RWMutex
	cache *reportCache
}

type reportCache struct {
	rep       *report.Report
	updatedAt time.Time
}

const reportCacheTTL = 60 * time.Second

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, runner *report.Runner) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// SetReport replaces the cached report, typically after a scheduled
// run, so HTTP clients see fresh data without triggering a new run.
func (s *Server) SetReport(rep *report.Report) {
	s.mu.Lock()
	s.cache = &reportCache{rep: rep, updatedAt: time.Now()}
	s.mu.Unlock()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password is treated as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="teamcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve blocks until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("HTTP server shutdown failed", err)
		}
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/calendar", s.handleCalendar)
	s.mux.HandleFunc("/calendar.xlsx", s.handleWorkbook)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/calendar", http.StatusFound)
}

// latest returns the cached report, running the pipeline when the
// cache is stale or empty.
func (s *Server) latest(ctx context.Context) (*report.Report, error) {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()
	if c != nil && time.Since(c.updatedAt) < reportCacheTTL {
		return c.rep, nil
	}

	rep, err := s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.SetReport(rep)
	return rep, nil
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	GeneratedAt time.Time     `json:"generated_at"`
	WindowStart string        `json:"window_start"`
	WindowEnd   string        `json:"window_end"`
	EventCount  int           `json:"event_count"`
	Days        []string      `json:"days"`
	Months      []spanDTO     `json:"months"`
	Weeks       []spanDTO     `json:"weeks"`
	Employees   []employeeDTO `json:"employees"`
	Unmatched   []string      `json:"unmatched,omitempty"`
	OutputPath  string        `json:"output_path,omitempty"`
}

// spanDTO is one merged header cell: a label and the column count it
// covers.
type spanDTO struct {
	Label string `json:"label"`
	Width int    `json:"width"`
}

// employeeDTO is one roster row. Status maps ISO dates to the status
// code for that day; absent days mean present.
type employeeDTO struct {
	Name   string            `json:"name"`
	Depth  int               `json:"depth"`
	Status map[string]string `json:"status,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	rep, err := s.latest(r.Context())
	if err != nil {
		appLog.Error("api schedule: report run failed", err)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	writeJSON(w, http.StatusOK, scheduleDTO(rep))
}

func scheduleDTO(rep *report.Report) scheduleResponse {
	resp := scheduleResponse{
		GeneratedAt: rep.GeneratedAt,
		WindowStart: rep.Window.Start.Date(),
		WindowEnd:   rep.Window.End.Date(),
		EventCount:  rep.EventCount,
		Days:        make([]string, 0, len(rep.Plan.Columns)),
		Unmatched:   rep.Unmatched,
		OutputPath:  rep.OutputPath,
	}
	for _, d := range rep.Plan.Columns {
		resp.Days = append(resp.Days, d.Date())
	}
	for _, sp := range rep.Plan.Months {
		resp.Months = append(resp.Months, spanDTO{Label: sp.Label, Width: sp.Width()})
	}
	for _, sp := range rep.Plan.Weeks {
		resp.Weeks = append(resp.Weeks, spanDTO{Label: sp.Label, Width: sp.Width()})
	}
	for _, node := range rep.Forest.Nodes {
		dto := employeeDTO{Name: node.Name, Depth: node.Depth}
		if days := rep.Matrix[node.Name]; len(days) > 0 {
			dto.Status = make(map[string]string, len(days))
			for d, st := range days {
				dto.Status[d.Date()] = string(st)
			}
		}
		resp.Employees = append(resp.Employees, dto)
	}
	return resp
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	rep, err := s.latest(r.Context())
	if err != nil {
		appLog.Error("calendar page: report run failed", err)
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, viewFrom(rep)); err != nil {
		appLog.Error("calendar page: template failed", err)
		http.Error(w, "template failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePreview serves the PNG snapshot written by the capture step.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.cfg.OutputDir, report.PreviewFilename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "no snapshot available")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// handleWorkbook serves the workbook written by the last run.
func (s *Server) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	rep, err := s.latest(r.Context())
	if err != nil {
		appLog.Error("workbook download: report run failed", err)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	if rep.OutputPath == "" {
		writeError(w, http.StatusNotFound, "no workbook for this window")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(rep.OutputPath)+`"`)
	http.ServeFile(w, r, rep.OutputPath)
}

// calendarView is the template payload for the HTML preview.
type calendarView struct {
	GeneratedAt string
	WindowStart string
	WindowEnd   string
	EventCount  int
	Months      []spanView
	Weeks       []spanView
	Days        []string
	Rows        []rowView
	Unmatched   []string
}

type spanView struct {
	Label string
	Width int
}

type rowView struct {
	Name  string
	Pad   int
	Cells []string
}

func viewFrom(rep *report.Report) calendarView {
	v := calendarView{
		GeneratedAt: rep.GeneratedAt.Format(time.RFC1123),
		WindowStart: rep.Window.Start.Date(),
		WindowEnd:   rep.Window.End.Date(),
		EventCount:  rep.EventCount,
		Unmatched:   rep.Unmatched,
	}
	for _, sp := range rep.Plan.Months {
		v.Months = append(v.Months, spanView{Label: sp.Label, Width: sp.Width()})
	}
	for _, sp := range rep.Plan.Weeks {
		v.Weeks = append(v.Weeks, spanView{Label: sp.Label, Width: sp.Width()})
	}
	for _, d := range rep.Plan.Columns {
		v.Days = append(v.Days, grid.DayLabel(d))
	}
	for _, node := range rep.Forest.Nodes {
		row := rowView{Name: node.Name, Pad: 6 + node.Depth*18}
		for _, d := range rep.Plan.Columns {
			cell := ""
			if st, ok := rep.Matrix.Status(node.Name, d); ok {
				cell = string(st)
			}
			row.Cells = append(row.Cells, cell)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

// The cell classes reuse the status code strings; the colors mirror the
// workbook fills.
const calendarHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Team Calendar</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 16px; background: #fff; }
table { border-collapse: collapse; }
th, td { border: 1px solid #000; padding: 2px 6px; font-size: 12px; height: 18px; }
th { text-align: center; font-weight: normal; }
td.name { min-width: 140px; }
td.pto { background: #F28C28; }
td.travel { background: #0070C0; }
td.holiday { background: #C0C0C0; }
.meta { color: #555; font-size: 12px; margin-top: 8px; }
</style>
</head>
<body data-ready="true">
<table>
<tr><th></th>{{range .Months}}<th colspan="{{.Width}}">{{.Label}}</th>{{end}}</tr>
<tr><th></th>{{range .Weeks}}<th colspan="{{.Width}}">{{.Label}}</th>{{end}}</tr>
<tr><th>Employee</th>{{range .Days}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr><td class="name" style="padding-left: {{.Pad}}px">{{.Name}}</td>{{range .Cells}}<td class="{{.}}"></td>{{end}}</tr>
{{end}}</table>
<p class="meta">Generated {{.GeneratedAt}} | window {{.WindowStart}} to {{.WindowEnd}} | {{.EventCount}} events</p>
{{if .Unmatched}}<p class="meta">Unmatched: {{range $i, $t := .Unmatched}}{{if $i}}, {{end}}{{$t}}{{end}}</p>{{end}}
</body>
</html>
`

var calendarTmpl = template.Must(template.New("calendar").Parse(calendarHTML))

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
