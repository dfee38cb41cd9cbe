package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hearthloom/wyrmhall/completion"
	"github.com/hearthloom/wyrmhall/eventbus"
	"github.com/hearthloom/wyrmhall/mailbox"
	"github.com/hearthloom/wyrmhall/observability"
	"github.com/hearthloom/wyrmhall/pipeline/session"
	"github.com/hearthloom/wyrmhall/pipeline/stage"
	"github.com/hearthloom/wyrmhall/pipeline/worker"
	"github.com/hearthloom/wyrmhall/world"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the broker and interpreter workers until interrupted",
	Long: `Starts a fresh session over the save directory's mailbox files. Stale
entries a previous run left mid-flight are failed on startup, then both
workers poll until SIGINT or SIGTERM.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TraceEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "wyrmhall",
			Endpoint:    cfg.TraceEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	ws, err := world.OpenSQLStore(cfg.WorldDBPath())
	if err != nil {
		return err
	}
	defer ws.Close()

	pipeline := mailbox.NewStore(cfg.MailboxPath("pipeline"), cfg.PruneMax)
	outbound := mailbox.NewStore(cfg.MailboxPath("outbound"), cfg.PruneMax)
	audit := mailbox.NewAuditLog(cfg.AuditPath())
	if err := pipeline.EnsureExists(); err != nil {
		return err
	}
	if err := outbound.EnsureExists(); err != nil {
		return err
	}

	bus := eventbus.NewInMemoryBus(log)
	bus.AddMiddleware(eventbus.NewLoggingMiddleware(log))
	// A misbehaving subscriber (say, a wedged downstream hook) must not get
	// to slow every envelope: shed its event type until it recovers.
	bus.AddMiddleware(eventbus.NewCircuitBreakerMiddleware(5, 30*time.Second, log))

	reg := session.NewRegistry()
	log.Info("session started", "session", reg.ID(), "save_dir", cfg.SaveDir)

	// Publish the session id so `wyrmhall send` can stamp envelopes this
	// run will claim.
	if err := os.WriteFile(cfg.SessionPath(), []byte(reg.ID()+"\n"), 0o644); err != nil {
		return err
	}
	defer os.Remove(cfg.SessionPath())

	swept, err := worker.SweepOrphans(ctx, pipeline, reg, audit, bus, log)
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Warn("failed stale envelopes from previous run", "count", swept)
	}

	completer := completion.NewRetrying(completion.Echo{}, cfg.CompletionTimeout(), cfg.Completion.MaxRetries)

	workers := []*worker.Worker{}
	stages := []stage.Stage{
		stage.NewBroker(completer, cfg.Completion.Model, cfg.IterationLimit, log),
		stage.NewInterpreter(ws, cfg.IterationLimit, log),
	}
	for _, st := range stages {
		watcher, err := mailbox.NewWatcher(pipeline.Path())
		if err != nil {
			log.Warn("mailbox watcher unavailable, polling only", "error", err)
		} else {
			defer watcher.Close()
		}
		w, err := worker.New(st, worker.Config{
			Pipeline:     pipeline,
			Outbound:     outbound,
			Audit:        audit,
			Session:      reg,
			Dedup:        session.NewDedupCache(cfg.DedupCapacity),
			Bus:          bus,
			Watcher:      watcher,
			PollInterval: cfg.PollInterval(),
			Log:          log,
		})
		if err != nil {
			return err
		}
		workers = append(workers, w)
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			_ = w.Run(ctx)
		}(w)
	}
	wg.Wait()
	log.Info("session stopped", "session", reg.ID())
	return nil
}
