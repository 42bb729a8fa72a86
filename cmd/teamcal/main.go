package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"teamcal/internal/capture"
	"teamcal/internal/config"
	"teamcal/internal/ics"
	appLog "teamcal/internal/log"
	"teamcal/internal/report"
	"teamcal/internal/resolve"
	"teamcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	months     int
	out        string
	once       bool
	snapshot   bool
	dumpJSON   bool
}

// artifacts are the per-run extras requested on the command line,
// written next to the workbook.
type artifacts struct {
	snapshotPath string
	dumpJSON     bool
}

func main() {
	appLog.Info("teamcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file where provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.months > 0 {
		conf.ReportWindowMonths = flags.months
	}
	if flags.out != "" {
		conf.OutputDir = flags.out
	}

	envCfg, err := config.LoadEnv()
	if err != nil {
		appLog.Error("failed to read environment", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"window_months", conf.ReportWindowMonths,
		"refresh", conf.RefreshCron,
		"roster", conf.RosterPath,
		"output_dir", conf.OutputDir,
		"feeds", len(conf.Feeds),
		"resolver_enabled", envCfg.OpenAIAPIKey != "",
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetcher, err := ics.NewFetcher("", conf.CertificatePath)
	if err != nil {
		appLog.Error("failed to init feed fetcher", err, "certificate_path", conf.CertificatePath)
		os.Exit(1)
	}

	var resolver resolve.Resolver
	if envCfg.OpenAIAPIKey != "" {
		client, err := resolve.NewClient(resolve.Config{
			APIKey:  envCfg.OpenAIAPIKey,
			BaseURL: envCfg.OpenAIBaseURL,
			Model:   envCfg.OpenAIModel,
		})
		if err != nil {
			appLog.Error("failed to init resolver", err)
			os.Exit(1)
		}
		resolver = client
	} else {
		appLog.Warn("TEAMCAL_OPENAI_API_KEY is not set; event titles will not be resolved")
	}

	runner := report.NewRunner(conf, fetcher, resolver)

	extras := artifacts{dumpJSON: flags.dumpJSON}
	if flags.snapshot {
		extras.snapshotPath = filepath.Join(conf.OutputDir, report.PreviewFilename)
	}

	if flags.once {
		if err := runOnce(ctx, conf, runner, extras); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
		appLog.Info("teamcal exiting")
		return
	}

	runWatch(ctx, cancel, conf, runner, extras)
	appLog.Info("teamcal exiting")
}

// runOnce executes a single report cycle. When a snapshot is requested
// the preview server comes up just long enough for Chromium to render
// the calendar page.
func runOnce(ctx context.Context, conf *config.Config, runner *report.Runner, extras artifacts) error {
	if extras.snapshotPath == "" {
		rep, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		return dumpDebug(rep, conf, extras)
	}

	srv := web.NewServer(conf, runner)
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	go func() {
		if err := srv.Serve(serveCtx); err != nil {
			appLog.Error("HTTP server failed", err)
		}
	}()
	if err := waitForServer(ctx, conf.Listen); err != nil {
		return err
	}

	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	srv.SetReport(rep)
	if err := dumpDebug(rep, conf, extras); err != nil {
		return err
	}

	return snapshot(ctx, conf.Listen, extras.snapshotPath)
}

// dumpDebug honors -dump-json after a completed run.
func dumpDebug(rep *report.Report, conf *config.Config, extras artifacts) error {
	if !extras.dumpJSON {
		return nil
	}
	path, err := report.WriteDebugJSON(rep, conf.OutputDir)
	if err != nil {
		return err
	}
	appLog.Info("debug dump written", "output", path)
	return nil
}

// runWatch serves the preview and regenerates the report on the
// configured cron schedule until the context is canceled.
func runWatch(ctx context.Context, cancel context.CancelFunc, conf *config.Config, runner *report.Runner, extras artifacts) {
	srv := web.NewServer(conf, runner)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	refresh := func() {
		if ctx.Err() != nil {
			return
		}
		rep, err := runner.Run(ctx)
		if err != nil {
			appLog.Error("scheduled run failed", err)
			return
		}
		srv.SetReport(rep)
		// Secondary artifacts never kill the watch loop.
		if err := dumpDebug(rep, conf, extras); err != nil {
			appLog.Error("debug dump failed", err)
		}
		if extras.snapshotPath != "" {
			if err := snapshot(ctx, conf.Listen, extras.snapshotPath); err != nil {
				appLog.Error("snapshot failed", err)
			}
		}
	}

	// First run at startup so the preview has data immediately.
	refresh()

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, refresh); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	appLog.Info("refresh schedule armed", "refresh", conf.RefreshCron)

	<-ctx.Done()

	// Let an in-flight scheduled run finish before exiting.
	<-c.Stop().Done()
}

func snapshot(ctx context.Context, listen, outputPath string) error {
	appLog.Info("capturing calendar snapshot", "output", outputPath)
	return capture.SnapshotPNG(ctx, capture.Options{
		URL:        "http://" + listen + "/calendar",
		OutputPath: outputPath,
	})
}

// waitForServer polls /health until the listener accepts connections.
func waitForServer(ctx context.Context, addr string) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s did not come up", addr)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.IntVar(&cfg.months, "months", 0, "Report window in months (overrides config if set)")
	flag.StringVar(&cfg.out, "out", "", "Output directory for workbooks (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one report cycle and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Also capture preview.png of the calendar page next to the workbook")
	flag.BoolVar(&cfg.dumpJSON, "dump-json", false, "Write the resolver mapping and schedule as JSON next to the workbook")

	flag.Parse()

	return cfg
}
