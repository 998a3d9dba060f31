package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sachinfortude/RAMP-UP/internal/app"
	"github.com/sachinfortude/RAMP-UP/internal/config"
	"github.com/sachinfortude/RAMP-UP/internal/logger"
)

// Worker consumes import and filter jobs and publishes their outcomes to the
// broker.
func main() {
	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "worker"})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.InProcess() {
		log.Fatal().Msg("the worker needs the redis queue and a kafka or redis broker; use EMBEDDED_WORKER for memory backends")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker exited")
}

func run(ctx context.Context, cfg config.App, log zerolog.Logger) error {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	pub, err := a.Publisher()
	if err != nil {
		return err
	}
	if err := a.RegisterWorkers(pub); err != nil {
		return err
	}

	// Only health and metrics; the worker takes no requests.
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range a.Health() {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, body)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Queue.Run(gctx, cfg.Workers) })
	g.Go(func() error { return app.Serve(gctx, app.NewServer(cfg.WorkerPort, r), log) })
	return g.Wait()
}
