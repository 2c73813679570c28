package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/callback-scheduler/cmd/mainconfig"
	"github.com/wolfman30/callback-scheduler/internal/api/router"
	"github.com/wolfman30/callback-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/callback-scheduler/internal/bookings"
	appconfig "github.com/wolfman30/callback-scheduler/internal/config"
	"github.com/wolfman30/callback-scheduler/internal/conversation"
	"github.com/wolfman30/callback-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/callback-scheduler/internal/http/middleware"
	"github.com/wolfman30/callback-scheduler/internal/intent"
	"github.com/wolfman30/callback-scheduler/internal/messaging"
	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/internal/roster"
	"github.com/wolfman30/callback-scheduler/internal/sessions"
	"github.com/wolfman30/callback-scheduler/internal/temporal"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := mainconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting callback scheduler",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)
	os.Exit(run(cfg, logger))
}

// run returns the process exit code. Termination signals flush and return 0;
// startup failures, component errors and panics flush what they can and
// return 1.
func run(cfg *appconfig.Config, logger *logging.Logger) (code int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer stop()

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build storage", "error", err)
		return 1
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulerMetrics := metrics.NewSchedulerMetrics(reg)

	store := sessions.NewStore(storage.Sessions, logger,
		sessions.WithDebounce(cfg.SaveDebounce, cfg.SaveDebounceShort, cfg.SaveDebounceImmediate),
		sessions.WithBatchCap(cfg.SaveBatchCap),
		sessions.WithTimeout(cfg.SessionTimeout()),
		sessions.WithFlushObserver(schedulerMetrics),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			flush(store, logger)
			code = 1
		}
	}()

	model, releaseModel, err := bootstrap.BuildTextModel(ctx, cfg, mainconfig.LoadAWSConfig, logger)
	if err != nil {
		logger.Error("failed to build classifier model", "error", err)
		return 1
	}
	defer releaseModel()
	classifier, err := bootstrap.BuildClassifier(cfg, model, logger)
	if err != nil {
		logger.Error("failed to build classifier", "error", err)
		return 1
	}

	templates, err := bootstrap.BuildCatalog(cfg)
	if err != nil {
		logger.Error("failed to load message catalog", "error", err)
		return 1
	}
	sender, provider, reason := bootstrap.BuildOutboundSender(cfg, schedulerMetrics, logger)
	if reason != "" {
		logger.Warn("outbound transport not configured; replies are logged only", "reason", reason)
	}
	logger.Info("outbound sender ready", "provider", provider)

	detector := bookings.NewDetector(storage.Bookings, cfg.ConflictWindow, logger)
	driver := conversation.NewDriver(conversation.Deps{
		Sessions:   store,
		Classifier: classifier,
		Analyzer:   intent.NewAnalyzer(logger),
		Resolver:   temporal.NewResolver(logger),
		Scheduler:  bookings.NewService(storage.Bookings, detector, logger),
		Sender:     sender,
		Templates:  templates,
		Metrics:    schedulerMetrics,
		Logger:     logger,
	})
	store.SetTimeoutNotifier(driver)

	loaded, expired, err := store.LoadAll(ctx)
	if err != nil {
		logger.Error("failed to load sessions", "error", err)
		return 1
	}
	logger.Info("sessions restored", "loaded", loaded, "expired", len(expired))

	if err := os.MkdirAll(filepath.Dir(cfg.RosterFile), 0o755); err != nil {
		logger.Error("failed to create roster directory", "path", cfg.RosterFile, "error", err)
		return 1
	}
	members := roster.New(cfg.RosterFile, logger)
	if _, err := members.Reload(); err != nil {
		logger.Warn("initial roster load failed", "path", cfg.RosterFile, "error", err)
	}
	welcomer := roster.NewWelcomer(driver, store, cfg.WelcomeDelay, schedulerMetrics, logger)

	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	dispatcher := conversation.NewDispatcher(driver, store, logger, conversation.WithWorkerCount(cfg.WorkerCount))
	webhooks := handlers.NewTelnyxWebhookHandler(handlers.TelnyxWebhookConfig{
		Secret:  cfg.TelnyxWebhookSecret,
		Gate:    messaging.NewGate(members, logger),
		Queue:   dispatcher,
		Metrics: schedulerMetrics,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:         logger,
			TelnyxWebhooks: webhooks,
			MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			WebhookLimiter: limiter,
			Stats: func() map[string]any {
				return map[string]any{
					"sessions":       store.Len(),
					"pending_writes": store.PendingCount(),
					"roster":         len(members.Identifiers()),
					"store_backend":  storage.Backend,
				}
			},
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	welcomes := make(chan []string, 16)
	watcher := roster.NewWatcher(members, func(ctx context.Context, added []string) {
		select {
		case welcomes <- added:
		case <-ctx.Done():
		}
	}, logger)

	dispatcher.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		dispatcher.Close()
		dispatcher.Wait()
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ids := <-welcomes:
				welcomer.WelcomeAll(gctx, ids)
			}
		}
	})
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return limiter.RunEviction(gctx) })
	g.Go(func() error { return store.RunSweeper(gctx, cfg.SessionSweepInterval) })
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	flush(store, logger)
	if err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		return 1
	}
	logger.Info("scheduler stopped")
	return 0
}

// flush forces pending session writes using a context that outlives the
// cancelled run context.
func flush(store *sessions.Store, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := store.FlushNow(ctx); err != nil {
		logger.Error("final session flush failed", "error", err)
		return
	}
	logger.Info("sessions flushed", "sessions", store.Len())
}
