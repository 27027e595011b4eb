package server

import (
	"net/http"
	"time"

	"github.com/habitkit/habits/internal/auth"
	"github.com/habitkit/habits/internal/logger"

	"github.com/go-chi/chi/v5"
)

func (s *Server) generateAPIKey(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	apiKey, err := auth.NewAPIKey()
	if err != nil {
		logger.Error("Failed to generate API key", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate api key")
		return
	}
	keyHash := auth.HashAPIKey(apiKey)
	if err := s.store.PutAPIKey(r.Context(), keyHash, u.UserID); err != nil {
		logger.Error("Failed to store API key", "user_id", u.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	logger.Info("API key generated", "user_id", u.UserID, "keyHash", auth.TruncateHash(keyHash))
	if err := writeJSON(w, http.StatusOK, APIKeyResponse{APIKey: apiKey}); err != nil {
		logger.Error("Failed to serialize API key response", "error", err)
	}
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	keys, err := s.store.ListAPIKeys(r.Context(), u.UserID)
	if err != nil {
		writeStoreError(w, err, "api key", "Failed to list API keys", "user_id", u.UserID)
		return
	}

	resp := APIKeyListResponse{Keys: make([]APIKeyInfo, 0, len(keys))}
	for _, k := range keys {
		resp.Keys = append(resp.Keys, APIKeyInfo{
			Hash:      k.Hash,
			CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		logger.Error("Failed to serialize API key list", "error", err)
	}
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	hash := chi.URLParam(r, "hash")
	if err := s.store.DeleteAPIKey(r.Context(), u.UserID, hash); err != nil {
		writeStoreError(w, err, "api key", "Failed to delete API key", "user_id", u.UserID)
		return
	}
	logger.Info("API key revoked", "user_id", u.UserID, "keyHash", auth.TruncateHash(hash))
	w.WriteHeader(http.StatusNoContent)
}
