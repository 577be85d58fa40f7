package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/config"
	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/httpapi"
	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/leaderboard"
	"github.com/DoyleJ11/kostky-backend/internal/logging"
	"github.com/DoyleJ11/kostky-backend/internal/room"
	"github.com/DoyleJ11/kostky-backend/internal/store"
	"github.com/DoyleJ11/kostky-backend/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type resultStore interface {
	room.ResultRecorder
	httpapi.LeaderboardReader
}

type backends struct {
	rooms   store.RoomStore
	results resultStore
	close   func() error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}

	// The hub outlives the signal so rooms can flush before the pool closes.
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	h := hub.NewHub(hubCtx, hub.Config{
		Engine:        engine.New(cfg.Rules, nil),
		Store:         b.rooms,
		Results:       b.results,
		Logger:        log,
		RollAnimation: cfg.RollAnimation,
		IdleTimeout:   cfg.IdleTimeout,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:         h,
		Leaderboard: b.results,
		Logger:      log,
		WS:          ws.Config{OriginPatterns: cfg.AllowedOrigins},
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs error
		errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))

		done := make(chan struct{})
		select {
		case h.Inbox() <- hub.ShutdownHub{Done: done}:
			select {
			case <-done:
			case <-shutdownCtx.Done():
				errs = multierr.Append(errs, fmt.Errorf("hub shutdown: %w", shutdownCtx.Err()))
			}
		case <-shutdownCtx.Done():
			errs = multierr.Append(errs, fmt.Errorf("hub shutdown: %w", shutdownCtx.Err()))
		}

		errs = multierr.Append(errs, b.close())
		return errs
	})

	return g.Wait()
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (backends, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, rooms and results are kept in memory")
		return backends{
			rooms:   store.NewMemory(),
			results: leaderboard.NewMemory(),
			close:   func() error { return nil },
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return backends{}, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return backends{}, fmt.Errorf("ping database: %w", err)
	}

	rooms, err := store.NewGorm(pool)
	if err != nil {
		pool.Close()
		return backends{}, err
	}
	results := leaderboard.NewPostgres(pool)

	if err := multierr.Combine(rooms.Migrate(ctx), results.Migrate(ctx)); err != nil {
		pool.Close()
		return backends{}, fmt.Errorf("migrate: %w", err)
	}

	return backends{
		rooms:   rooms,
		results: results,
		close: func() error {
			err := rooms.Close()
			pool.Close()
			return err
		},
	}, nil
}
