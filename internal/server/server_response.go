package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/pkg/habit"

	"github.com/go-chi/chi/v5"
)

type HabitListResponse struct {
	Habits []habit.View `json:"habits"`
}

type HabitGetResponse struct {
	Habit       habit.View `json:"habit"`
	Completions []string   `json:"completions"`
}

type HabitSummaryResponse struct {
	HabitID      int64              `json:"habit_id"`
	HabitSummary habit.HabitSummary `json:"habit_summary"`
}

type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

type APIKeyListResponse struct {
	Keys []APIKeyInfo `json:"keys"`
}

type APIKeyInfo struct {
	Hash      string `json:"hash"`
	CreatedAt string `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	if err := writeJSON(w, code, ErrorResponse{Error: msg}); err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}

// writeStoreError maps storage and validation errors onto status codes.
// Anything unexpected is logged and reported as a generic 500.
func writeStoreError(w http.ResponseWriter, err error, subject, msg string, args ...any) {
	var verr *habit.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, subject+" not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, subject+" already exists")
	default:
		logger.Error(msg, append(args, "error", err)...)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}

func habitIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
