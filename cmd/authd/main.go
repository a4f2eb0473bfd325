// Command authd wires the auth subsystem into an HTTP process: config
// from the environment (.env supported in development), Postgres via
// pgxpool, Redis for the session projection and rate limiting, and the
// dependency container resolving the managers lazily.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/taskwell/authcore"
	"github.com/taskwell/authcore/cache"
	"github.com/taskwell/authcore/httpapi"
	"github.com/taskwell/authcore/jwt"
	"github.com/taskwell/authcore/mail"
	"github.com/taskwell/authcore/password"
	"github.com/taskwell/authcore/postgres"
	"github.com/taskwell/authcore/ratelimit"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("authd exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// Absent in production; real env vars take over there.
	_ = godotenv.Load()

	cfg, err := authcore.LoadEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	c := authcore.NewContainer()
	registerServices(c, cfg, pool, rdb, log)

	store := c.MustGet("store").(*postgres.Store)
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable at startup, session reads will fall through to postgres", "error", err)
	}

	limiter := c.MustGet("limiter").(ratelimit.Limiter)
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		stopSweeper := mem.StartSweeper(cfg.RateLimit.SweepInterval)
		defer stopSweeper()
	}

	api := httpapi.New(
		c.MustGet("credentials").(*authcore.Credentials),
		c.MustGet("sessions").(*authcore.Sessions),
		limiter,
		log,
	)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(api.Routes())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("authd listening", "addr", srv.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// registerServices declares the dependency graph. Construction is lazy;
// resolution order follows the graph, not this listing.
func registerServices(c *authcore.Container, cfg authcore.Config, pool *pgxpool.Pool, rdb *redis.Client, log *slog.Logger) {
	c.Register("store", func(*authcore.Container) (any, error) {
		return postgres.NewStore(pool), nil
	})

	c.Register("cache", func(*authcore.Container) (any, error) {
		return cache.NewSessions(rdb, cfg.Session.CachePrefix), nil
	})

	c.Register("jwt", func(*authcore.Container) (any, error) {
		return jwt.NewManager([]byte(cfg.JWT.Secret), cfg.Session.TTL)
	})

	c.Register("hasher", func(*authcore.Container) (any, error) {
		return password.NewBcrypt(cfg.Password.BcryptCost)
	})

	c.Register("mailer", func(*authcore.Container) (any, error) {
		if cfg.Mail.ResendAPIKey == "" {
			log.Warn("no resend api key configured, reset emails disabled")
			return mail.NoOp{}, nil
		}
		return mail.NewResend(cfg.Mail.ResendAPIKey, cfg.Mail.FromEmail, cfg.Mail.AppURL), nil
	})

	c.Register("limiter", func(*authcore.Container) (any, error) {
		if cfg.Redis.Addr == "" {
			return ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window), nil
		}
		return ratelimit.NewRedisLimiter(rdb, "rl", cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window), nil
	})

	c.Register("sessions", func(c *authcore.Container) (any, error) {
		store, err := c.Get("store")
		if err != nil {
			return nil, err
		}
		projections, err := c.Get("cache")
		if err != nil {
			return nil, err
		}
		tokens, err := c.Get("jwt")
		if err != nil {
			return nil, err
		}
		return authcore.NewSessions(
			store.(*postgres.Store),
			projections.(*cache.Sessions),
			tokens.(*jwt.Manager),
			cfg.Session,
			cfg.Environment,
			log,
		), nil
	})

	c.Register("credentials", func(c *authcore.Container) (any, error) {
		store, err := c.Get("store")
		if err != nil {
			return nil, err
		}
		hasher, err := c.Get("hasher")
		if err != nil {
			return nil, err
		}
		sessions, err := c.Get("sessions")
		if err != nil {
			return nil, err
		}
		mailer, err := c.Get("mailer")
		if err != nil {
			return nil, err
		}
		pg := store.(*postgres.Store)
		return authcore.NewCredentials(
			pg,
			pg,
			hasher.(password.Hasher),
			sessions.(*authcore.Sessions),
			mailer.(mail.Mailer),
			cfg.PasswordReset.TokenTTL,
			log,
		), nil
	})
}
