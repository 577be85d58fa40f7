package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/room"
	"github.com/DoyleJ11/kostky-backend/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const codeAttempts = 8

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateRoom(h *hub.Hub, log *zap.Logger, gen func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < codeAttempts; i++ {
			code, err := gen()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate code")
				return
			}
			rm, err := h.Create(r.Context(), code)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "hub unavailable")
				return
			}
			if rm == nil {
				log.Debug("collision on code, regenerating", zap.String("room", code))
				continue
			}
			writeJSON(w, http.StatusCreated, types.CreatedRoom{Code: code})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create room")
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		rm, err := h.Get(r.Context(), code)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		if rm == nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		reply := make(chan room.View, 1)
		if !rm.Send(room.GetState{Reply: reply}) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, types.RoomSnapshot{Code: code, Version: v.Version, Room: v.Room})
		case <-rm.Done():
			writeError(w, http.StatusNotFound, "room not found")
		case <-r.Context().Done():
		}
	}
}

// UnloadRoom stops the live room. The stored document is kept and the next
// request or connection restores it.
func UnloadRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := h.Unload(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub unavailable")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "room not running")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Leaderboard(lb LeaderboardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 100 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
				return
			}
			limit = n
		}
		entries, err := lb.Top(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read leaderboard")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
