package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/samber/oops"

	"blogapi/internal/config"
	"blogapi/internal/database"
	"blogapi/internal/dbx"
	"blogapi/internal/handlers"
	"blogapi/internal/logging"
	"blogapi/internal/metrics"
	"blogapi/internal/middleware"
	"blogapi/internal/repositories"
	"blogapi/internal/routes"
	"blogapi/internal/services"
)

// App is the assembled API server and its background jobs.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	metrics *metrics.Metrics
	resets  services.PasswordResetService
	router  *gin.Engine
}

// New opens the database and optional Redis connections, applies the
// schema when configured, and wires the application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.ApplySchema {
		if err := database.ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if rdb == nil {
		logger.Warn("redis url not set, rate limiting disabled")
	}

	a, err := Build(cfg, logger, db, rdb)
	if err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	return a, nil
}

// Build wires repositories, services, handlers and routes on top of
// already opened connections. rdb may be nil.
func Build(cfg *config.Config, logger *slog.Logger, db *sql.DB, rdb *redis.Client) (*App, error) {
	m := metrics.New()
	repos := repositories.NewPostgresManager()
	tx := dbx.NewSQLTransactor(db)

	var notifier services.Notifier
	if cfg.Email.Enabled() {
		notifier = services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		)
	} else {
		logger.Warn("smtp host not set, emails will only be logged")
		notifier = &services.LogNotifier{Logger: logger}
	}

	// === Services ===
	tokenService := services.NewTokenService(db, repos, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger)
	userService, err := services.NewUserService(db, repos, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, oops.In("app").Wrapf(err, "user service")
	}
	authService := services.NewAuthService(db, tx, userService, tokenService, notifier, logger, m)
	resetService := services.NewPasswordResetService(db, tx, repos, userService, tokenService, notifier,
		services.PasswordResetOptions{
			CodeTTL:             cfg.Auth.ResetCodeTTL,
			RevokeTokensOnReset: cfg.Auth.RevokeTokensOnReset,
		}, logger, m)
	postService := services.NewPostService(db, repos)
	commentService := services.NewCommentService(db, repos, userService, notifier, logger)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(authService, resetService, logger)
	userHandler := handlers.NewUserHandler(authService, logger)
	postHandler := handlers.NewPostHandler(postService, logger)
	commentHandler := handlers.NewCommentHandler(commentService, logger)
	healthHandler := handlers.NewHealthHandler(db)

	// === Gin ===
	if logging.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger, m))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	var limiter middleware.Limiter
	if rdb != nil {
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	routes.SetupRoutes(
		router,
		routes.Guards{
			Auth:      middleware.RequireAuth(tokenService, logger),
			RateLimit: middleware.RateLimit(limiter, logger, m),
		},
		authHandler,
		userHandler,
		postHandler,
		commentHandler,
		healthHandler,
		gin.WrapH(m.Handler()),
	)

	return &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		redis:   rdb,
		metrics: m,
		resets:  resetService,
		router:  router,
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.router
}

// PurgeResets deletes expired password reset codes once.
func (a *App) PurgeResets(ctx context.Context) (int64, error) {
	n, err := a.resets.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	a.logger.Info("expired reset codes purged", "count", n)
	return n, nil
}

// startPurgeJob schedules PurgeResets on the configured cron schedule.
func (a *App) startPurgeJob() (*cron.Cron, error) {
	c := cron.New()
	err := c.AddFunc(a.cfg.Maintenance.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := a.PurgeResets(ctx); err != nil {
			logging.LogError(a.logger, "purge expired reset codes", err)
		}
	})
	if err != nil {
		return nil, oops.In("app").With("schedule", a.cfg.Maintenance.PurgeSchedule).Wrapf(err, "schedule purge job")
	}
	c.Start()
	return c, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	jobs, err := a.startPurgeJob()
	if err != nil {
		return err
	}
	defer jobs.Stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.In("app").Wrapf(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.In("app").Wrapf(err, "shutdown")
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
