package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"

	_ "ricauth/docs"
	"ricauth/internal/config"
	"ricauth/internal/handlers"
	"ricauth/internal/middleware"
	"ricauth/internal/migrations"
	"ricauth/internal/outbox"
	"ricauth/internal/repositories"
	"ricauth/internal/routes"
	"ricauth/internal/services"
)

// App holds the opened resources and the services built on them.
type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *sql.DB
	Redis  *redis.Client

	Auth          services.AuthService
	Users         services.UserService
	Organizations services.OrganizationService
	Groups        services.GroupService
	Reminders     services.PasswordReminderService
	Resets        services.PasswordResetService
	EmailChanges  services.EmailChangeService
	Tasks         services.TaskProgressService

	dispatcher *outbox.Mux
}

// New opens the database (and redis when the limiter uses it) and wires
// repositories and services.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &App{Config: cfg, Log: logger, DB: db}

	if cfg.RateLimit.Enabled && cfg.RateLimit.Store == "redis" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
	}

	a.wire()
	return a, nil
}

func (a *App) component(name string) *logrus.Entry {
	return a.Log.WithField("component", name)
}

func (a *App) wire() {
	cfg := a.Config

	// === Repos ===
	userRepo := repositories.NewUserRepository(a.DB)
	roleRepo := repositories.NewRoleRepository(a.DB)
	orgRepo := repositories.NewOrganizationRepository(a.DB)
	groupRepo := repositories.NewGroupRepository(a.DB)
	membershipRepo := repositories.NewMembershipRepository(a.DB)
	historyRepo := repositories.NewPasswordHistoryRepository(a.DB)
	reminderRepo := repositories.NewPasswordReminderRepository(a.DB)
	resetRepo := repositories.NewPasswordResetRepository(a.DB)
	emailChangeRepo := repositories.NewEmailChangeRepository(a.DB)

	// === Services ===
	a.Auth = services.NewAuthService(a.DB, userRepo, historyRepo, services.AuthSettings{
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		AccessLifetime:  cfg.Auth.AccessLifetime,
		RefreshLifetime: cfg.Auth.RefreshLifetime,
		PasswordHistory: cfg.Auth.PasswordHistory,
	}, a.component("auth"))

	mailer := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		cfg.Email.SendAttempts,
		a.component("email"),
	)

	a.Users = services.NewUserService(userRepo, roleRepo, a.Auth, a.component("user"))
	a.Organizations = services.NewOrganizationService(orgRepo, a.component("organization"))
	a.Groups = services.NewGroupService(groupRepo, membershipRepo, roleRepo, userRepo, a.component("group"))
	a.Reminders = services.NewPasswordReminderService(reminderRepo)
	a.Resets = services.NewPasswordResetService(resetRepo, a.component("password_reset"))
	a.EmailChanges = services.NewEmailChangeService(a.DB, emailChangeRepo, userRepo, outbox.NewPublisher(), mailer,
		services.EmailChangeSettings{
			TTL:          cfg.EmailChange.TTL(),
			AttemptLimit: cfg.EmailChange.AttemptLimit,
			FEBaseURL:    cfg.EmailChange.FEBaseURL,
		}, a.component("email_change"))
	a.Tasks = services.NewTaskProgressService(outbox.NewTracker(a.DB, cfg.Outbox.MaxAttempts))

	a.dispatcher = outbox.NewMux()
	a.dispatcher.Handle(services.TopicEmailChangeVerification, a.EmailChanges.Dispatcher())
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.WithError(err).Warn("[app] close redis")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Log.WithError(err).Warn("[app] close database")
	}
}

// Router builds the gin engine with the ambient middleware and every route.
func (a *App) Router() (*gin.Engine, error) {
	cfg := a.Config

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(a.Log))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limit, err := a.rateLimiter()
	if err != nil {
		return nil, err
	}

	checks := map[string]handlers.Pinger{"database": a.DB}
	if a.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}

	routes.SetupRoutes(router, routes.Handlers{
		Auth:         handlers.NewAuthHandler(a.Auth, a.component("http")),
		User:         handlers.NewUserHandler(a.Users, cfg.Server.MediaURL, a.component("http")),
		Organization: handlers.NewOrganizationHandler(a.Organizations, a.component("http")),
		Group:        handlers.NewGroupHandler(a.Groups, a.component("http")),
		Password:     handlers.NewPasswordHandler(a.Reminders, a.Resets, a.component("http")),
		EmailChange:  handlers.NewEmailChangeHandler(a.EmailChanges, a.component("http")),
		Task:         handlers.NewTaskHandler(a.Tasks, a.component("http")),
		Health:       handlers.NewHealthHandler(checks),
	}, []byte(cfg.Auth.JWTSecret), limit)

	return router, nil
}

func (a *App) rateLimiter() (gin.HandlerFunc, error) {
	cfg := a.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}

	var store limiter.Store
	if a.Redis != nil {
		s, err := middleware.NewRedisStore(a.Redis)
		if err != nil {
			a.Log.WithError(err).Warn("[app] redis limiter store unavailable, falling back to memory")
			s = middleware.NewMemoryStore()
		}
		store = s
	} else {
		store = middleware.NewMemoryStore()
	}
	return middleware.RateLimit(store, cfg.Rate, a.component("ratelimit"))
}

// Migrate applies pending migrations when auto_migrate is on.
func (a *App) Migrate(ctx context.Context) error {
	if !a.Config.Database.AutoMigrate {
		return nil
	}
	a.Log.Info("[app] applying migrations")
	return migrations.Up(ctx, a.DB)
}

// Serve runs the HTTP server and the background workers until ctx is done,
// then shuts the server down gracefully and waits for the workers.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	router, err := a.Router()
	if err != nil {
		return err
	}

	workers, err := a.workers()
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	for name, run := range workers {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.WithError(err).WithField("worker", name).Error("[app] worker stopped")
			}
		}(name, run)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", srv.Addr).Info("[app] server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	a.Log.Info("[app] shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.WithError(err).Warn("[app] graceful shutdown failed")
	}
	wg.Wait()
	return runErr
}

func (a *App) workers() (map[string]func(context.Context) error, error) {
	cfg := a.Config.Outbox
	out := map[string]func(context.Context) error{
		"email_change_sweeper": func(ctx context.Context) error {
			a.EmailChanges.RunSweeper(ctx, a.Config.EmailChange.SweepInterval)
			return nil
		},
	}

	if cfg.RelayEnabled {
		relay, err := a.NewRelay()
		if err != nil {
			return nil, err
		}
		out["outbox_relay"] = relay.Run
	}

	cleaner, err := a.NewCleaner()
	if err != nil {
		return nil, err
	}
	out["outbox_cleaner"] = cleaner.Run
	return out, nil
}

// NewRelay builds the outbox relay that delivers queued mail.
func (a *App) NewRelay() (*outbox.Relay, error) {
	cfg := a.Config.Outbox
	return outbox.NewRelay(a.DB, a.dispatcher, outbox.RelayOptions{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		LockTTL:         cfg.LockTTL,
		MaxAttempts:     cfg.MaxAttempts,
		SingleActive:    cfg.SingleActive,
		MaxBackoff:      cfg.MaxBackoff,
		DispatchTimeout: cfg.DispatchTimeout,
		LastErrorMaxLen: cfg.LastErrorMaxBytes,
		Logger:          a.component("outbox"),
	})
}

// NewCleaner builds the job that prunes delivered and dead outbox rows.
func (a *App) NewCleaner() (*outbox.Cleaner, error) {
	cfg := a.Config.Outbox
	return outbox.NewCleaner(a.DB, outbox.CleanerOptions{
		Enabled:     cfg.CleanerEnabled,
		Interval:    cfg.CleanerInterval,
		Retention:   cfg.CleanerRetention,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      a.component("outbox"),
	})
}
