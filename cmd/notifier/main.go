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
	"github.com/sachinfortude/RAMP-UP/internal/auth"
	"github.com/sachinfortude/RAMP-UP/internal/config"
	"github.com/sachinfortude/RAMP-UP/internal/httpmiddleware"
	"github.com/sachinfortude/RAMP-UP/internal/logger"
	"github.com/sachinfortude/RAMP-UP/internal/notify"
)

// Notifier consumes job outcomes from the broker and pushes them to every
// connected websocket client.
func main() {
	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "notifier"})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.BrokerBackend == "memory" {
		log.Fatal().Msg("the notifier needs a kafka or redis broker")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("notifier stopped")
	}
	log.Info().Msg("notifier exited")
}

func run(ctx context.Context, cfg config.App, log zerolog.Logger) error {
	// The notifier never touches records or jobs.
	cfg.StoreBackend = "memory"
	cfg.QueueBackend = "memory"
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := a.NewHub()
	sub, err := a.Subscriber("notifier")
	if err != nil {
		return err
	}
	bridge := notify.NewBridge(sub, hub, log)

	r := gin.New()
	r.Use(gin.Recovery(), httpmiddleware.RequestLogger(log, "/healthz", "/metrics"), httpmiddleware.CORS(cfg.CORSOrigins))
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.ClientCount()})
	})
	ws := r.Group("/ws")
	if issuer, _ := a.Auth(); issuer != nil {
		ws.Use(auth.OperatorAuth(issuer))
	}
	ws.GET("", gin.WrapH(hub))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return app.Serve(gctx, app.NewServer(cfg.NotifierPort, r), log) })
	return g.Wait()
}
