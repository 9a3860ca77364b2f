// Command dripkit runs the delivery engine's trigger server. All work
// is driven by an external cron hitting the trigger endpoints; this
// process holds no tickers and no resident workers.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/dripkit/modules/campaign"
	"github.com/dmitrymomot/dripkit/modules/dispatch"
	"github.com/dmitrymomot/dripkit/modules/sequence"
	"github.com/dmitrymomot/dripkit/pkg/config"
	"github.com/dmitrymomot/dripkit/pkg/delayq"
	"github.com/dmitrymomot/dripkit/pkg/email"
	"github.com/dmitrymomot/dripkit/pkg/httpserver"
	"github.com/dmitrymomot/dripkit/pkg/logger"
	"github.com/dmitrymomot/dripkit/pkg/pg"
	"github.com/dmitrymomot/dripkit/pkg/redisconn"
)

type appConfig struct {
	Log       logger.Config
	HTTP      httpserver.Config
	PG        pg.Config
	Redis     redisconn.Config
	Queue     delayq.Config
	Email     email.Config
	Campaign  campaign.Config
	Sequence  sequence.Config
	Dispatch  dispatch.Config
	DevSender bool `env:"EMAIL_USE_DEV_SENDER" envDefault:"false"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, "dripkit")
	ctx := context.Background()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dripkit exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redisconn.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	queue, err := delayq.NewRedisQueue(rdb,
		delayq.WithKeyPrefix(cfg.Queue.KeyPrefix),
		delayq.WithPromoteOrder(cfg.Queue.PromoteOrder),
		delayq.WithPromoteBatch(cfg.Queue.PromoteBatch),
		delayq.WithDefaultMaxAttempts(cfg.Queue.DefaultMaxAttempts),
	)
	if err != nil {
		return err
	}
	router, err := delayq.NewRouter(queue)
	if err != nil {
		return err
	}

	var sender email.Sender
	if cfg.DevSender {
		sender = email.NewDevSender(cfg.Email.DevSenderDir)
		log.Warn("using dev email sender, no real email will be sent",
			slog.String("dir", cfg.Email.DevSenderDir))
	} else {
		if sender, err = email.NewPostmarkSender(cfg.Email); err != nil {
			return err
		}
	}

	campaignStore, err := campaign.NewPGStore(pool)
	if err != nil {
		return err
	}
	sequenceStore, err := sequence.NewPGStore(pool)
	if err != nil {
		return err
	}

	campaignHandlers, err := campaign.NewHandlers(campaignStore, router, sender, cfg.Campaign,
		campaign.WithHandlerLogger(log))
	if err != nil {
		return err
	}
	stepHandler, err := sequence.NewStepHandler(sequenceStore, router, sender,
		sequence.WithStepHandlerLogger(log))
	if err != nil {
		return err
	}
	engine, err := sequence.NewEngine(sequenceStore, router, sequence.WithEngineLogger(log))
	if err != nil {
		return err
	}
	poller, err := sequence.NewPoller(sequenceStore, engine, cfg.Sequence,
		sequence.WithPollerLogger(log))
	if err != nil {
		return err
	}

	// The dev sender has no provider account, so its credentials are
	// always valid. The Postmark sender is checked against the provider;
	// the server token covers every brand on this install.
	checker := campaign.CredentialCheckerFunc(func(ctx context.Context, brandID string) (bool, error) {
		return true, nil
	})
	if verifier, ok := sender.(email.CredentialVerifier); ok {
		checker = func(ctx context.Context, brandID string) (bool, error) {
			return verifier.VerifyCredentials(ctx)
		}
	}
	watchdog, err := campaign.NewWatchdog(campaignStore, router, checker, cfg.Campaign,
		campaign.WithWatchdogLogger(log))
	if err != nil {
		return err
	}

	d, err := dispatch.New(router,
		dispatch.WithLogger(log),
		dispatch.WithBackoff(cfg.Dispatch.BackoffBase, cfg.Dispatch.BackoffCap),
	)
	if err != nil {
		return err
	}
	if err := d.Register(campaignHandlers.ScheduleDue(), campaignHandlers.FailCampaign()); err != nil {
		return err
	}
	if err := d.Register(campaignHandlers.SendBatch(), campaignHandlers.FailCampaign()); err != nil {
		return err
	}
	if err := d.Register(stepHandler, stepHandler.Exhausted()); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log,
		pg.Healthcheck(pool),
		redisconn.Healthcheck(rdb),
	))
	r.Mount("/triggers", d.Routes(map[string]dispatch.Task{
		"poller":   poller.RunOnce,
		"watchdog": watchdog.Reconcile,
	}))

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}
