package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	acueducto "github.com/set-night/acueducto"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/handler"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/middleware"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/set-night/acueducto/internal/server"
	"github.com/set-night/acueducto/internal/service"
	"github.com/set-night/acueducto/internal/telegram"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{MaxConns: int32(cfg.SweepWorkers) + 8})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	if err := repository.RunMigrations(cfg.DatabaseURL, acueducto.MigrationsFS, "migrations"); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to redis
	rdb, err := repository.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gateways, err := gateway.FromConfig(cfg)
	if err != nil {
		slog.Error("failed to configure payment gateways", "error", err)
		os.Exit(1)
	}

	store := repository.NewStore(pool)
	m := metrics.New()

	// Create bot
	var ops *telegram.OpsLogger
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(opsReporter{&ops}),
			middleware.Logging(),
			middleware.RateLimit(repository.NewRateLimiter(rdb), cfg),
			middleware.CustomerLoader(store, cfg),
		),
		// Free text and unknown callbacks are ignored
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	ops = telegram.NewOpsLogger(b, cfg)

	// Initialize services
	policies := service.NewPolicyStore(store, m, cfg.PolicyCacheTTL)
	notifier := service.NewNotifier(store, telegram.NewNotifier(b), m)
	invoices := service.NewInvoiceService(store, policies, notifier, m, service.InvoiceOptions{
		Location: loc,
		Workers:  cfg.SweepWorkers,
	})
	memberships := service.NewMembershipService(store)
	checkouts := service.NewCheckoutService(store, gateways, gateway.NewOrderClient(config.OrderTimeout), cfg, m)
	reconciler := service.NewReconciler(store, gateways, invoices, memberships, policies, notifier, m)
	reconciler.SetAuditor(ops)
	reminders := service.NewReminderService(store, policies, notifier,
		repository.NewDedupe(rdb, "reminder", config.ReminderDedupeTTL), loc)
	analysis := service.NewAnalysisService(store, policies, notifier,
		repository.NewDedupe(rdb, "consumption", config.ConsumptionAlertDedupeTTL))

	// Initialize handler
	h := handler.New(handler.Deps{
		Bot:         b,
		Cfg:         cfg,
		Location:    loc,
		Invoices:    invoices,
		Analysis:    analysis,
		Checkouts:   checkouts,
		Memberships: memberships,
		Policies:    policies,
		Ops:         ops,
	})
	h.Register()

	// Scheduled jobs
	scheduler := service.NewScheduler(ctx, repository.NewLeases(rdb), loc)
	jobs := []service.Job{
		{
			Name:     "sweep",
			Schedule: cfg.SweepSchedule,
			LeaseTTL: config.SweepLeaseTTL,
			Run: func(ctx context.Context) error {
				report, err := invoices.Sweep(ctx)
				if err != nil {
					ops.LogError(err, "scheduled sweep")
					return err
				}
				ops.LogSweep(report.Summary())
				return nil
			},
		},
		{
			Name:     "reminders",
			Schedule: cfg.ReminderSchedule,
			LeaseTTL: config.ReminderLeaseTTL,
			Run: func(ctx context.Context) error {
				_, err := reminders.Run(ctx)
				return err
			},
		},
		{
			Name:     "membership-expiry",
			Schedule: config.ExpirySchedule,
			LeaseTTL: config.ExpiryLeaseTTL,
			Run: func(ctx context.Context) error {
				_, err := memberships.Expire(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			slog.Error("failed to schedule job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(server.Deps{
		Reconciler: reconciler,
		Checkouts:  checkouts,
		Limiter:    repository.NewRateLimiter(rdb),
		Metrics:    m,
		Checks: []server.Check{
			{Name: "postgres", Ping: store.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, fmt.Sprintf(":%d", cfg.Port))
	})
	g.Go(func() error {
		slog.Info("starting bot", "username", me.Username, "id", me.ID, "gateways", gateways.Names(), "admins", cfg.AdminIDsString())
		b.Start(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	slog.Info("acueducto stopped gracefully")
}

// opsReporter defers to the ops logger once the bot exists.
type opsReporter struct {
	ops **telegram.OpsLogger
}

func (r opsReporter) LogError(err error, context string) {
	(*r.ops).LogError(err, context)
}
