// Package app opens the shared handles of the api, worker and notifier
// processes from one config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/auth"
	"github.com/sachinfortude/RAMP-UP/internal/config"
	"github.com/sachinfortude/RAMP-UP/internal/httpapi"
	"github.com/sachinfortude/RAMP-UP/internal/metrics"
	"github.com/sachinfortude/RAMP-UP/internal/notify"
	"github.com/sachinfortude/RAMP-UP/internal/pipeline"
	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/store"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// App holds everything a process opened. Close releases it in reverse order.
type App struct {
	Cfg     config.App
	Log     zerolog.Logger
	Metrics *metrics.Collectors

	DB       *store.DB
	Redis    *store.Redis
	Students *student.Service
	Queue    *queue.Queue

	closers []func() error
}

// Open connects the record store and the job queue named by cfg.
func Open(ctx context.Context, cfg config.App, log zerolog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log, Metrics: metrics.New()}

	var records student.Store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		records = student.NewRepository(db.Client)
	default:
		log.Warn().Msg("using in-memory student store; records are lost on restart")
		records = student.NewMemoryStore(nil)
	}
	a.Students = student.NewService(records, log)

	if cfg.QueueBackend == "redis" || cfg.BrokerBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, a.Redis.Close)
		if !a.Redis.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
	}

	var backend queue.Backend
	if cfg.QueueBackend == "redis" {
		backend = queue.NewRedisBackend(a.Redis.Client, cfg.QueuePrefix)
	} else {
		mem := queue.NewMemoryBackend(256)
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
		backend = mem
	}
	a.Queue = queue.New(backend, log,
		queue.WithObserver(a.Metrics),
		queue.WithJobTimeout(cfg.JobTimeout),
	)
	return a, nil
}

// Publisher returns the broker publisher workers report outcomes to. The
// memory broker has none; callers publish into their own Hub instead.
func (a *App) Publisher() (notify.Publisher, error) {
	switch a.Cfg.BrokerBackend {
	case "kafka":
		p := notify.NewKafkaPublisher(a.Cfg.KafkaBrokers, a.Cfg.KafkaTopic, a.Log)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "redis":
		return notify.NewRedisPublisher(a.Redis.Client, a.Cfg.RedisChannel), nil
	}
	return nil, errors.New("the memory broker only works inside the api process")
}

// Subscriber returns a broker subscription. Every process serving a Hub
// needs its own Kafka group so each of them sees every event.
func (a *App) Subscriber(role string) (notify.Subscriber, error) {
	switch a.Cfg.BrokerBackend {
	case "kafka":
		host, _ := os.Hostname()
		group := fmt.Sprintf("%s-%s-%s", a.Cfg.KafkaGroup, role, host)
		s := notify.NewKafkaSubscriber(a.Cfg.KafkaBrokers, a.Cfg.KafkaTopic, group, a.Log)
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "redis":
		return notify.NewRedisSubscriber(a.Redis.Client, a.Cfg.RedisChannel, a.Log), nil
	}
	return nil, errors.New("the memory broker has no subscription")
}

// RegisterWorkers installs the import and filter workers, reporting to pub.
func (a *App) RegisterWorkers(pub notify.Publisher) error {
	imp := pipeline.NewImportWorker(a.Students, pub, a.Metrics, a.Log)
	flt := pipeline.NewFilterWorker(a.Students, pub, a.Cfg.DownloadDir, a.Log)
	return pipeline.Register(a.Queue, imp, flt)
}

// Intake returns the job intake for the api.
func (a *App) Intake() *pipeline.Intake {
	return pipeline.NewIntake(a.Queue, pipeline.IntakeConfig{
		UploadDir:   a.Cfg.UploadDir,
		DownloadDir: a.Cfg.DownloadDir,
		Attempts:    a.Cfg.JobAttempts,
		Backoff:     a.Cfg.JobBackoff,
	}, a.Log)
}

// NewHub returns a websocket hub reporting to the process metrics.
func (a *App) NewHub() *notify.Hub {
	h := notify.NewHub(a.Log,
		notify.WithHubObserver(a.Metrics),
		notify.WithAllowedOrigins(a.Cfg.CORSOrigins),
	)
	a.closers = append(a.closers, func() error { h.Close(); return nil })
	return h
}

// Health returns one check per backing service that was opened.
func (a *App) Health() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return checks
}

// Auth returns the token issuer and operator, or nil when auth is off.
func (a *App) Auth() (*auth.Issuer, auth.Operator) {
	if !a.Cfg.AuthEnabled {
		return nil, auth.Operator{}
	}
	iss := auth.NewIssuer(a.Cfg.JWTIssuer, a.Cfg.JWTSigningKey, a.Cfg.AccessTTL, a.Cfg.RefreshTTL)
	return iss, auth.Operator{ID: a.Cfg.OperatorID, Secret: a.Cfg.OperatorSecret}
}

// Close releases every handle, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// Serve runs srv until ctx is done, then gives in-flight requests ten
// seconds to finish.
func Serve(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// NewServer applies the timeouts every process uses.
func NewServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
