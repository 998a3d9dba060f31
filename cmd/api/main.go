package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sachinfortude/RAMP-UP/internal/app"
	"github.com/sachinfortude/RAMP-UP/internal/config"
	"github.com/sachinfortude/RAMP-UP/internal/httpapi"
	"github.com/sachinfortude/RAMP-UP/internal/logger"
	"github.com/sachinfortude/RAMP-UP/internal/notify"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "api"})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api stopped")
	}
	log.Info().Msg("api exited")
}

func run(ctx context.Context, cfg config.App, log zerolog.Logger) error {
	if cfg.InProcess() && !cfg.EmbeddedWorker {
		log.Warn().Msg("memory queue or broker without EMBEDDED_WORKER: jobs will never run")
	}

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := a.NewHub()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.BrokerBackend != "memory" {
		sub, err := a.Subscriber("api")
		if err != nil {
			return err
		}
		bridge := notify.NewBridge(sub, hub, log)
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if cfg.EmbeddedWorker {
		var pub notify.Publisher = hub
		if cfg.BrokerBackend != "memory" {
			if pub, err = a.Publisher(); err != nil {
				return err
			}
		}
		if err := a.RegisterWorkers(pub); err != nil {
			return err
		}
		g.Go(func() error { return a.Queue.Run(gctx, cfg.Workers) })
	}

	issuer, operator := a.Auth()
	router := httpapi.NewRouter(httpapi.Deps{
		Students:        a.Students,
		Jobs:            a.Intake(),
		Status:          a.Queue,
		Events:          hub,
		Metrics:         a.Metrics.Handler(),
		Health:          a.Health(),
		Issuer:          issuer,
		Operator:        operator,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
		Log:             log,
	})

	srv := app.NewServer(cfg.HTTPPort, router)
	g.Go(func() error { return app.Serve(gctx, srv, log) })
	return g.Wait()
}
