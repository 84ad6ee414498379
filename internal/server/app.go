// Package server initializes and runs the auth server. It wires the
// database, the redis-backed rate limiter and the auth service together,
// runs migrations on startup and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/config"
	"github.com/avickovich/taskhive/internal/server/httpapi"
	"github.com/avickovich/taskhive/internal/server/lockout"
	"github.com/avickovich/taskhive/internal/server/notify"
	"github.com/avickovich/taskhive/internal/server/password"
	"github.com/avickovich/taskhive/internal/server/ratelimit"
	"github.com/avickovich/taskhive/internal/server/repositories/repomanager"
	"github.com/avickovich/taskhive/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	tokens      *auth.Manager
	limiter     *ratelimit.Limiter
	authService *services.AuthService
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	limiter := ratelimit.NewLimiter(rdb, c.LoginRateMax, c.LoginRateWindow)

	tokens := auth.NewManager(c.AccessSecret, c.RefreshSecret,
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)

	svc := services.NewAuthService(
		db, rm, tokens,
		password.NewHasher(c.BcryptCost),
		lockout.NewPolicy(c.LockoutThreshold, c.LockoutDuration),
		notify.NewLogNotifier(logger),
		logger,
		c.PublicBaseURL,
		c.MinResponseLatency,
	)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		redis:       rdb,
		tokens:      tokens,
		limiter:     limiter,
		authService: svc,
	}, nil
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
	s := httpapi.NewServer(app.config.EndpointAddr, app.logger,
		httpapi.NewHandler(app.authService), app.tokens, app.limiter)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "closing redis", "err", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "err", err)
	}
}
