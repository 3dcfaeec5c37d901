package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/trialviz/soa-analyzer/pkg/config"
	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/output"
	"github.com/trialviz/soa-analyzer/pkg/store"
	"github.com/trialviz/soa-analyzer/pkg/watcher"
	"github.com/trialviz/soa-analyzer/pkg/web"
)

func main() {
	f := pflag.NewFlagSet("soa-analyzer", pflag.ExitOnError)
	f.String("document", "study.json", "Path to the USDM study-design JSON document")
	f.String("overlay", "", "Path to the layout overlay JSON (optional)")
	f.String("provenance", "", "Path to the cell provenance JSON (optional)")
	f.Bool("web", false, "Start web server instead of printing to console")
	f.Int("port", 8080, "Port for web server (only used with --web)")
	f.Bool("watch", false, "Rebuild models when input files change (only used with --web)")
	f.Bool("open", true, "Open browser when starting web server")
	f.CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	f.String("verbosity", "", "Explicit log level: trace, debug, info, warn, error")
	if err := f.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logging.SetLevel(logLevel(cfg))

	st := store.New(store.Paths{
		Document:   cfg.Document,
		Overlay:    cfg.Overlay,
		Provenance: cfg.Provenance,
	}, cfg.Layout)

	if !cfg.WebMode {
		if err := st.Reload(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		output.PrintStudyReport(cfg.Document, st.Snapshot())
		if !st.Snapshot().Graph.Validation.Valid {
			os.Exit(1)
		}
		return
	}

	runWebServer(cfg, st)
}

// logLevel maps the verbosity configuration to a slog level. An explicit
// --verbosity name wins over repeated -v flags.
func logLevel(cfg *config.Config) slog.Level {
	switch cfg.Verbosity {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	switch {
	case cfg.VerboseCnt >= 2:
		return slog.LevelDebug - 4
	case cfg.VerboseCnt == 1:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func runWebServer(cfg *config.Config, st *store.Store) {
	server := web.NewServer(st)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	go func() {
		logging.Info("starting web server", "url", url)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal("web server failed", "error", err)
		}
	}()

	if cfg.OpenBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url)
		}()
	}

	// First build happens after the server is up so clients can watch the
	// status feed from the start.
	server.PublishStudyStatus("loading", "Loading study design", 1, 2)
	if err := st.Reload(); err != nil {
		logging.Error("initial load failed", "error", err)
		server.PublishStudyStatus("error", err.Error(), 1, 2)
	} else {
		server.PublishStudyStatus("ready", "Study models built", 2, 2)
		server.PublishGraphModel("rebuilt", true)
	}

	if cfg.Watch {
		go watchInputs(ctx, cfg, st, server)
	}

	<-ctx.Done()
	logging.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("shutdown incomplete", "error", err)
	}
}

// watchInputs drives store reloads from debounced file change events.
func watchInputs(ctx context.Context, cfg *config.Config, st *store.Store, server *web.Server) {
	fw, err := watcher.NewFileWatcher(cfg.Document, cfg.Overlay, cfg.Provenance)
	if err != nil {
		logging.Error("failed to create file watcher", "error", err)
		return
	}
	defer fw.Stop()

	if err := fw.Start(ctx); err != nil {
		logging.Error("failed to start file watcher", "error", err)
		return
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	for event := range debouncer.Output() {
		analysis := watcher.AnalyzeChanges(event)
		logging.Info("input files changed",
			"files", len(analysis.ChangedFiles),
			"graph", analysis.NeedGraphRebuild,
			"table", analysis.NeedTableRebuild)

		server.PublishStudyStatus("building", "Rebuilding study models", 1, 2)
		if err := st.Reload(); err != nil {
			logging.Error("rebuild failed", "error", err)
			server.PublishStudyStatus("error", err.Error(), 1, 2)
			continue
		}
		server.PublishStudyStatus("ready", "Study models rebuilt", 2, 2)
		if analysis.NeedGraphRebuild {
			server.PublishGraphModel("rebuilt", true)
		}
	}
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Debug("cannot open browser on platform", "platform", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Debug("failed to open browser", "error", err)
	}
}
