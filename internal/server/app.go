// Package server initializes and runs the provisioning server.
// It wires storage, cloud clients, the credential cipher and the optional
// Redis lock, then runs the HTTP API and the gRPC health endpoint until a
// termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/cryptox"
	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/server/accesscheck"
	"github.com/dmitrijs2005/gophbucket/internal/server/cloud"
	"github.com/dmitrijs2005/gophbucket/internal/server/config"
	"github.com/dmitrijs2005/gophbucket/internal/server/httpapi"
	"github.com/dmitrijs2005/gophbucket/internal/server/lock"
	"github.com/dmitrijs2005/gophbucket/internal/server/metrics"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophbucket/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophbucket/internal/server/grpc"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthPollInterval = 10 * time.Second
)

// Seams for tests.
var (
	sqlOpen         = sql.Open
	newCloudClients = cloud.NewClients
	newRepoManager  = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry
	handler  http.Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, c.LogLevel)
	ctx := context.Background()

	cipher, err := buildCipher(c)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	settings := cloud.Settings{
		Region:          c.AWSRegion,
		IAMBaseEndpoint: c.IAMBaseEndpoint,
		S3BaseEndpoint:  c.S3BaseEndpoint,
	}
	clients, err := newCloudClients(ctx, settings, c.AWSAccessKeyID, c.AWSSecretAccessKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cloud init error: %w", err)
	}

	if c.RedisAddr != "" && c.LockTTL < c.ProvisionBudget() {
		logger.Warn(ctx, "lock ttl below provisioning budget, raising it",
			"lock_ttl", c.LockTTL.String(), "budget", c.ProvisionBudget().String())
	}
	rc, locker := buildLocker(c)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ps := services.NewProvisioningService(db, rm, clients, cipher, locker, m, logger, c)
	us := services.NewUploadService(db, rm, cipher, cloud.ScopedPresigners(settings), m, logger, c)
	is := services.NewIdentityService(db, rm)

	router, err := httpapi.NewRouter(httpapi.Deps{
		Provisioner:          ps,
		Issuer:               us,
		Details:              is,
		Checker:              accesscheck.NewClient(c.CheckAccessURL, c.CallTimeout),
		Gatherer:             registry,
		Log:                  logger,
		ProvisionAccessLevel: c.ProvisionAccessLevel,
		UploadAccessLevel:    c.UploadAccessLevel,
		RateLimitPerMinute:   c.RateLimitPerMinute,
		UploadURLTTL:         c.UploadURLTTL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("router init error: %w", err)
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		redis:    rc,
		registry: registry,
		handler:  router,
	}, nil
}

// buildCipher prefers an explicit base64 key and otherwise derives one from
// the configured passphrase and salt.
func buildCipher(c *config.Config) (*cryptox.Cipher, error) {
	if c.CipherKey != "" {
		key, err := cryptox.KeyFromBase64(c.CipherKey)
		if err != nil {
			return nil, err
		}
		return cryptox.NewCipher(key)
	}
	if c.CipherPassphrase == "" {
		return nil, errors.New("either a cipher key or a passphrase is required")
	}
	return cryptox.NewCipher(cryptox.DeriveKey([]byte(c.CipherPassphrase), []byte(c.CipherSalt)))
}

// buildLocker returns a Redis-backed lock when an address is configured and
// a no-op lock otherwise. The client is nil in the latter case.
func buildLocker(c *config.Config) (*redis.Client, lock.Locker) {
	if c.RedisAddr == "" {
		return nil, lock.Noop{}
	}
	rc := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	return rc, lock.NewRedisLocker(rc, "gophbucket:lock:", c.EffectiveLockTTL())
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, healthPollInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}
