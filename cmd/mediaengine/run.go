package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localfirst/mediaengine/internal/config"
	"github.com/localfirst/mediaengine/internal/events"
	"github.com/localfirst/mediaengine/internal/identity"
	"github.com/localfirst/mediaengine/internal/ingest"
	"github.com/localfirst/mediaengine/internal/logging"
	"github.com/localfirst/mediaengine/internal/organiser"
	"github.com/localfirst/mediaengine/internal/processor"
	"github.com/localfirst/mediaengine/internal/reconcile"
	"github.com/localfirst/mediaengine/internal/scoring"
	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/watcher"
	"github.com/localfirst/mediaengine/internal/worker"
)

var (
	runLogPath     string
	runDebug       bool
	runMetricsAddr string
	runWatchDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine: watch the inbox, ingest, score, organise",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runLogPath, "log-file", "mediaengine.log", "rotated structured log file")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "enable debug-level log lines")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":9090", "listen address for /metrics and /system/status")
	runCmd.Flags().StringVar(&runWatchDir, "watch-dir", "inbox", "inbox directory the watcher observes")
}

func doRun(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	notifier := logging.NewFileNotifier(runLogPath, runDebug)

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		notifier.Errorf("create data root %s: %v", cfg.DataRoot, err)
		return err
	}
	if err := os.MkdirAll(runWatchDir, 0o755); err != nil {
		notifier.Errorf("create watch dir %s: %v", runWatchDir, err)
		return err
	}
	quarantineDir := filepath.Join(cfg.DataRoot, "_quarantine")
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		notifier.Errorf("create quarantine dir %s: %v", quarantineDir, err)
		return err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		// spec §7 StoreCorrupt: a failed integrity check is fatal, the
		// engine must refuse to start rather than accept traffic.
		notifier.Errorf("refusing to start, catalogue unavailable: %v", err)
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	ingestMetrics := ingest.NewMetrics(reg)
	eventMetrics := events.NewMetrics(reg)

	publisher := events.NewWebhookPublisher(eventMetrics)

	registry := processor.NewRegistry(processor.FallbackProcessor{}, 0)
	org := organiser.New(cfg.DataRoot, organiser.DefaultTemplate)

	orch := &ingest.Orchestrator{
		Store:     st,
		Registry:  registry,
		Publisher: publisher,
		Organiser: org,
		Notifier:  notifier,
		Metrics:   ingestMetrics,
		Config:    buildIngestConfig(cfg, quarantineDir),
	}

	debounceCfg := watcher.DefaultConfig()
	queue := watcher.NewQueue(ctx, debounceCfg, func(err error) { notifier.Warnf("debounce queue: %v", err) })
	defer queue.Close()

	dw, err := watcher.NewDirWatcher(runWatchDir, queue, func(err error) { notifier.Warnf("watcher: %v", err) }, 5*time.Second)
	if err != nil {
		return err
	}
	dw.Start(ctx)
	defer dw.Close()

	w := worker.New(ctx, debounceCfg.OutputCapacity, 0, func(err error) { notifier.Warnf("worker: %v", err) })
	go func() {
		for {
			select {
			case c, ok := <-queue.Out():
				if !ok {
					return
				}
				w.Enqueue(worker.Item{
					Value: c,
					Handler: func(hctx context.Context, v interface{}) {
						orch.ProcessCandidate(hctx, v.(watcher.Candidate))
					},
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	// Startup differential scan (spec §4.9: "performs a differential scan
	// of the watched root to pick up files that appeared while the
	// process was down"). A synthetic Created event per file re-enters
	// the exact same debounce+probe path a live fsnotify event would.
	differentialScan(ctx, runWatchDir, queue, notifier)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/system/status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"status":"ok","version":"1"}`))
	})
	httpServer := &http.Server{Addr: runMetricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			notifier.Errorf("metrics server: %v", err)
		}
	}()

	notifier.Infof("mediaengine started: watching %s, catalogue %s, data root %s", runWatchDir, cfg.DatabasePath, cfg.DataRoot)

	<-ctx.Done()
	notifier.Infof("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	w.Stop()

	if _, err := st.PruneLog(context.Background(), cfg.Maintenance.MaxTransactionLogEntries); err != nil {
		notifier.Warnf("prune transaction log failed: %v", err)
	}
	if _, err := reconcile.ReconcileOrphans(context.Background(), st, notifier); err != nil {
		notifier.Warnf("orphan reconciliation on shutdown failed: %v", err)
	}

	return nil
}

// differentialScan synthesizes a Created FileEvent for every regular file
// under dir, letting the normal debounce/probe path decide whether each one
// is already settled or still being written. Top-level subdirectories are
// walked concurrently via errgroup (capped at host parallelism), matching
// spec §4.9's "differential scan of the watched root" against a layout
// where an inbox may itself be organised into per-category subfolders.
func differentialScan(ctx context.Context, dir string, queue *watcher.Queue, notifier logging.Notifier) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		notifier.Warnf("differential scan of %s failed: %v", dir, err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, entry := range entries {
		entry := entry
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			g.Go(func() error {
				return filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
					if walkErr != nil {
						return nil // skip unreadable entries, don't abort the scan
					}
					if d.IsDir() {
						return nil
					}
					if gctx.Err() != nil {
						return gctx.Err()
					}
					queue.Enqueue(watcher.FileEvent{Path: p, Type: watcher.Created, OccurredAt: time.Now()})
					return nil
				})
			})
			continue
		}
		queue.Enqueue(watcher.FileEvent{Path: path, Type: watcher.Created, OccurredAt: time.Now()})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		notifier.Warnf("differential scan of %s incomplete: %v", dir, err)
	}
}

// buildIngestConfig translates the on-disk config document into the
// orchestrator's runtime Config, deriving provider weight tables from the
// enabled providers[] entries (spec §4.2's provider_weights /
// provider_field_weights inputs).
func buildIngestConfig(cfg config.Config, quarantineDir string) ingest.Config {
	providerWeights := map[string]float64{}
	providerFieldWeights := map[string]map[string]float64{}
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		providerWeights[p.Name] = p.Weight
		if len(p.FieldWeights) > 0 {
			providerFieldWeights[p.Name] = p.FieldWeights
		}
	}
	if _, ok := providerWeights[ingest.LocalProviderID]; !ok {
		providerWeights[ingest.LocalProviderID] = 1.0
	}

	return ingest.Config{
		Scoring: scoring.Config{
			AutoLinkThreshold: cfg.Scoring.AutoLinkThreshold,
			ConflictThreshold: cfg.Scoring.ConflictThreshold,
			ConflictEpsilon:   cfg.Scoring.ConflictEpsilon,
			StaleDecayDays:    cfg.Scoring.StaleClaimDecayDays,
			StaleDecayFactor:  cfg.Scoring.StaleClaimDecayFactor,
		},
		Identity: identity.Config{
			AutoLinkThreshold: cfg.Scoring.AutoLinkThreshold,
			ConflictThreshold: cfg.Scoring.ConflictThreshold,
		},
		QuarantineDir:        quarantineDir,
		ProviderWeights:      providerWeights,
		ProviderFieldWeights: providerFieldWeights,
	}
}
