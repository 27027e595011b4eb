package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/habitkit/habits/internal/auth"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

type providerLink struct {
	ID   string
	Name string
}

type authPage struct {
	Error     string
	Username  string
	Providers []providerLink
}

func (s *Server) providerLinks() []providerLink {
	links := make([]providerLink, 0, len(s.authProviders))
	for id, p := range s.authProviders {
		links = append(links, providerLink{ID: id, Name: p.name})
	}
	slices.SortFunc(links, func(a, b providerLink) int { return strings.Compare(a.ID, b.ID) })
	return links
}

func (s *Server) registerPage(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "register", authPage{})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	page := authPage{Username: username}

	if err := auth.ValidateUsername(username); err != nil {
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, "register", page)
		return
	}
	if err := auth.ValidatePassword(password); err != nil {
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, "register", page)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("Failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	u, err := s.store.CreateUser(r.Context(), username, hash)
	if errors.Is(err, storage.ErrConflict) {
		page.Error = "username already taken"
		s.render(w, http.StatusConflict, "register", page)
		return
	}
	if err != nil {
		logger.Error("Failed to create user", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	registrationsTotal.Inc()
	logger.Info("User registered", "user_id", u.ID, "username", u.Username)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionUserID(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "login", authPage{Providers: s.providerLinks()})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	u, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("Failed to look up user", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err != nil || !auth.VerifyPassword(u.PasswordHash, password) {
		RecordAuthEvent("login", "failed", "password")
		s.render(w, http.StatusUnauthorized, "login", authPage{
			Error:     "invalid username or password",
			Username:  username,
			Providers: s.providerLinks(),
		})
		return
	}

	if err := s.setSession(w, u.ID); err != nil {
		logger.Error("Failed to encode session cookie", "error", err)
		http.Error(w, "session encoding failed", http.StatusInternalServerError)
		return
	}
	RecordAuthEvent("login", "success", "password")
	logger.Info("User logged in", "user_id", u.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	logger.Info("User logout completed")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) oidcLogin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	prov, ok := s.authProviders[id]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	// PKCE
	verifier := make([]byte, 48)
	if _, err := rand.Read(verifier); err != nil {
		http.Error(w, "pkce gen failed", http.StatusInternalServerError)
		return
	}
	verifierStr := base64.RawURLEncoding.EncodeToString(verifier)
	hash := sha256.Sum256([]byte(verifierStr))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		http.Error(w, "state gen failed", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(stateBytes)

	// Keep the return path relative.
	ret := r.URL.Query().Get("return")
	if u, err := url.Parse(ret); ret == "" || err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(ret, "/") {
		ret = "/"
	}

	prov.state.Put(st, authState{
		Verifier: verifierStr,
		Return:   ret,
		ExpireAt: time.Now().Add(stateTTL),
	})

	authURL := prov.oauth2.AuthCodeURL(
		st,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) oidcCallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	prov, ok := s.authProviders[id]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	st := r.URL.Query().Get("state")
	if st == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	saved, ok := prov.state.GetAndDelete(st)
	if !ok || saved.Verifier == "" {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	tok, err := prov.oauth2.Exchange(
		r.Context(),
		code,
		oauth2.SetAuthURLParam("code_verifier", saved.Verifier),
	)
	if err != nil {
		logger.Warn("OIDC code exchange failed", "provider", id, "error", err)
		RecordAuthEvent("login", "exchange_failed", id)
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		http.Error(w, "no id_token in response", http.StatusBadGateway)
		return
	}

	user, err := s.authenticateIDToken(r.Context(), id, rawIDToken)
	if err != nil {
		logger.Warn("OIDC login rejected", "provider", id, "error", err)
		RecordAuthEvent("login", "failed", id)
		http.Error(w, "id_token invalid", http.StatusUnauthorized)
		return
	}

	if err := s.setSession(w, user.UserID); err != nil {
		logger.Error("Failed to encode session cookie", "error", err)
		http.Error(w, "session encoding failed", http.StatusInternalServerError)
		return
	}
	RecordAuthEvent("login", "success", id)
	logger.Info("User logged in", "user_id", user.UserID, "provider", id)
	http.Redirect(w, r, saved.Return, http.StatusFound)
}
