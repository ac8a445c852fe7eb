package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/dedupe"
	"github.com/DeafMist/event-radar/internal/grouping"
	"github.com/DeafMist/event-radar/internal/logger"
	"github.com/DeafMist/event-radar/internal/notify"
	"github.com/DeafMist/event-radar/internal/schedule"
	"github.com/DeafMist/event-radar/internal/storage"
	"github.com/DeafMist/event-radar/internal/trigger"
)

func main() {
	once := flag.Bool("once", false, "run a single grouping pass and exit")
	flag.Parse()

	log := logger.New("grouper")
	cfg, err := config.LoadGrouper()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.OpenWithRetry(ctx, cfg.Common, log, 10)
	if err != nil {
		log.Error("open storage", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	log.Info("connected to storage", slog.String("backend", cfg.StorageBackend))

	metrics, err := grouping.NewMetrics(nil)
	if err != nil {
		log.Error("init metrics", slog.Any("err", err))
		os.Exit(1)
	}

	opts := []grouping.RunnerOption{grouping.WithMetrics(metrics)}
	if cfg.GroupsTopic != "" {
		publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.GroupsTopic, log)
		defer publisher.Close()
		opts = append(opts, grouping.WithPublisher(publisher))
	}

	d := &daemon{
		runner:  grouping.NewRunner(store, grouping.BuilderFromConfig(cfg.Grouping, log), log, opts...),
		options: grouping.OptionsFromConfig(cfg.Grouping),
		timeout: cfg.RunTimeout,
		log:     log,
	}

	if *once {
		if err := d.runOnce(ctx, "once"); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := d.serve(ctx, cfg); err != nil {
		log.Error("grouper stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

type daemon struct {
	runner  *grouping.Runner
	options grouping.Options
	timeout time.Duration
	log     *slog.Logger
}

// serve runs grouping on the cron schedule and, when a trigger topic is
// configured, shortly after new articles are announced. It blocks until ctx
// is done.
func (d *daemon) serve(ctx context.Context, cfg *config.Grouper) error {
	sched, err := schedule.New(cfg.Schedule, cfg.Timezone, func() {
		_ = d.runOnce(ctx, "schedule")
	}, d.log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.TriggerTopic != "" {
		seen := dedupe.NewCache[int64](cfg.DedupeCapacity, cfg.DedupeTTL)
		listener := trigger.NewListener(cfg.KafkaBrokers, cfg.TriggerTopic, cfg.KafkaConsumer, seen, d.log)
		defer listener.Close()

		signals := make(chan struct{}, 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx, func(int64) {
				select {
				case signals <- struct{}{}:
				default:
				}
			}); err != nil {
				d.log.Error("trigger listener stopped", slog.Any("err", err))
			}
		}()
		go func() {
			defer wg.Done()
			trigger.Debounce(ctx, signals, cfg.TriggerDebounce, func(ctx context.Context) {
				_ = d.runOnce(ctx, "trigger")
			})
		}()
	}

	sched.Start()
	d.log.Info("grouper started",
		slog.String("schedule", cfg.Schedule),
		slog.String("timezone", cfg.Timezone),
		slog.Time("next_run", sched.Next()),
		slog.String("groups_topic", cfg.GroupsTopic),
		slog.String("trigger_topic", cfg.TriggerTopic),
	)

	// Run immediately on start, but don't fail if storage is temporarily unavailable
	_ = d.runOnce(ctx, "startup")

	<-ctx.Done()
	d.log.Info("shutdown signal received")
	sched.Stop()
	wg.Wait()
	return nil
}

// runOnce executes one grouping pass bounded by the run timeout. A pass that
// overlaps a running one is skipped.
func (d *daemon) runOnce(ctx context.Context, reason string) error {
	subCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	stats, err := d.runner.Run(subCtx, d.options)
	switch {
	case errors.Is(err, grouping.ErrRunInProgress):
		d.log.Debug("grouping run skipped, previous run still active", slog.String("reason", reason))
		return nil
	case err != nil:
		d.log.Warn("grouping run failed (will retry on next trigger)",
			slog.String("reason", reason),
			slog.String("run_id", stats.RunID),
			slog.Any("err", err),
		)
		return err
	}

	if stats.GroupsCreated > 0 {
		d.log.Info("grouping run completed",
			slog.String("reason", reason),
			slog.Int("groups_created", stats.GroupsCreated),
		)
	} else {
		d.log.Debug("grouping run completed, no new groups", slog.String("reason", reason))
	}
	return nil
}
