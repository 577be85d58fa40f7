package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/leaderboard"
	"github.com/DoyleJ11/kostky-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type LeaderboardReader interface {
	Top(ctx context.Context, limit int) ([]leaderboard.Entry, error)
}

type Deps struct {
	Hub         *hub.Hub
	Leaderboard LeaderboardReader
	Logger      *zap.Logger
	WS          ws.Config
	// GenerateCode defaults to the crypto/rand generator.
	GenerateCode func() (string, error)
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.GenerateCode == nil {
		d.GenerateCode = GenerateCode
	}
	if d.WS.Logger == nil {
		d.WS.Logger = d.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, d.Logger, d.GenerateCode))
	r.Get("/rooms/{code}", GetRoom(d.Hub))
	r.Delete("/rooms/{code}", UnloadRoom(d.Hub))
	if d.Leaderboard != nil {
		r.Get("/leaderboard", Leaderboard(d.Leaderboard))
	}
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.WS))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
