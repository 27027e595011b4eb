package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/habitkit/habits/internal/auth"
	"github.com/habitkit/habits/internal/config"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const stateTTL = 5 * time.Minute

type AuthProvider struct {
	name       string
	oauth2     *oauth2.Config
	idVerifier *oidc.IDTokenVerifier
	state      *StateStore
}

// StateStore holds in-flight OIDC login attempts keyed by the state parameter.
type StateStore struct {
	ttl time.Duration
	mu  sync.Mutex
	m   map[string]authState
}

type authState struct {
	Verifier string
	Return   string
	ExpireAt time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{ttl: ttl, m: make(map[string]authState)}
}

func (s *StateStore) Put(key string, v authState) {
	now := time.Now()
	if v.ExpireAt.IsZero() {
		v.ExpireAt = now.Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, old := range s.m {
		if now.After(old.ExpireAt) {
			delete(s.m, k)
		}
	}
	s.m[key] = v
}

func (s *StateStore) GetAndDelete(key string) (authState, bool) {
	s.mu.Lock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	s.mu.Unlock()
	if ok && time.Now().After(v.ExpireAt) {
		return authState{}, false
	}
	return v, ok
}

func ConfigureOIDCProviders(ctx context.Context, cfgs []config.OIDCProviderConfig) (map[string]*AuthProvider, error) {
	logger.Info("Configuring OIDC providers", "count", len(cfgs))
	providers := make(map[string]*AuthProvider, len(cfgs))

	for _, p := range cfgs {
		logger.Debug("Setting up OIDC provider", "id", p.Id, "name", p.Name, "issuer", p.IssuerURL)
		prov, err := oidc.NewProvider(ctx, p.IssuerURL)
		if err != nil {
			logger.Error("Failed to create OIDC provider", "id", p.Id, "error", err)
			return nil, fmt.Errorf("failed to create OIDC provider %s: %w", p.Id, err)
		}

		scopes := p.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}
		name := p.Name
		if name == "" {
			name = p.Id
		}

		providers[p.Id] = &AuthProvider{
			name: name,
			oauth2: &oauth2.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				Endpoint:     prov.Endpoint(),
				RedirectURL:  p.RedirectURL,
				Scopes:       scopes,
			},
			idVerifier: prov.Verifier(&oidc.Config{ClientID: p.ClientID}),
			state:      NewStateStore(stateTTL),
		}
		logger.Info("OIDC provider configured successfully", "id", p.Id, "name", name)
	}
	return providers, nil
}

// authMiddleware accepts, in order: a session cookie, an API key bearer
// token, or a "provider:id_token" bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if userID, ok := s.sessionUserID(r); ok {
			u, err := s.store.GetUser(ctx, userID)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(withUser(ctx, &User{
					UserID:   u.ID,
					Username: u.Username,
					Subject:  "session",
					Method:   "session",
				})))
				return
			}
			if !errors.Is(err, storage.ErrNotFound) {
				logger.Error("Failed to load session user", "user_id", userID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			logger.Debug("Session refers to unknown user", "user_id", userID)
			RecordAuthEvent("verification", "failed", "session")
			s.handleAuthFailure(w, r, true)
			return
		}

		ah := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(ah, "Bearer ")
		if !ok || token == "" {
			RecordAuthEvent("verification", "missing_token", "unknown")
			s.handleAuthFailure(w, r, false)
			return
		}

		if strings.HasPrefix(token, auth.APIKeyPrefix) {
			user, authenticated := s.authenticateAPIKey(ctx, token)
			if !authenticated {
				logger.Debug("API key authentication failed")
				RecordAuthEvent("verification", "failed", "apikey")
				s.handleAuthFailure(w, r, false)
				return
			}
			RecordAuthEvent("verification", "success", "apikey")
			next.ServeHTTP(w, r.WithContext(withUser(ctx, user)))
			return
		}

		providerID, rawIDToken, err := parseProviderToken(token)
		if err != nil {
			logger.Debug("Failed to parse Bearer token", "error", err)
			RecordAuthEvent("verification", "malformed_token", "unknown")
			s.handleAuthFailure(w, r, false)
			return
		}
		user, err := s.authenticateIDToken(ctx, providerID, rawIDToken)
		if err != nil {
			logger.Debug("ID token verification failed", "provider", providerID, "error", err)
			RecordAuthEvent("verification", "failed", providerID)
			s.handleAuthFailure(w, r, false)
			return
		}
		RecordAuthEvent("verification", "success", providerID)
		next.ServeHTTP(w, r.WithContext(withUser(ctx, user)))
	})
}

// parseProviderToken parses a provider-prefixed token of the format "provider:jwt"
func parseProviderToken(token string) (providerID, jwt string, err error) {
	if token == "" {
		return "", "", fmt.Errorf("empty token")
	}
	providerID, jwt, ok := strings.Cut(token, ":")
	if !ok {
		return "", "", fmt.Errorf("invalid token format: expected 'provider:jwt'")
	}
	if providerID == "" {
		return "", "", fmt.Errorf("empty provider ID")
	}
	if jwt == "" {
		return "", "", fmt.Errorf("empty JWT token")
	}
	return providerID, jwt, nil
}

func (s *Server) authenticateIDToken(ctx context.Context, providerID, rawIDToken string) (*User, error) {
	prov, ok := s.authProviders[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
	idTok, err := prov.idVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	var claims map[string]any
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	return s.userFromClaims(ctx, providerID, claims)
}

// userFromClaims maps an identity provider subject onto a local account,
// creating it on first sight.
func (s *Server) userFromClaims(ctx context.Context, providerID string, claims map[string]any) (*User, error) {
	externalID := userIDFromClaims(claims)
	if externalID == "" {
		return nil, errors.New("token has no iss/sub claims")
	}
	u, err := s.store.EnsureExternalUser(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("provision external user: %w", err)
	}
	return &User{
		UserID:   u.ID,
		Username: u.Username,
		Subject:  strClaim(claims, "sub"),
		Email:    strClaim(claims, "email"),
		Method:   "oidc:" + providerID,
	}, nil
}

func strClaim(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

// userIDFromClaims generates a consistent external id from OIDC token claims
func userIDFromClaims(claims map[string]any) string {
	iss, ok := claims["iss"].(string)
	if !ok || iss == "" {
		return ""
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(iss + "|" + sub))
	return fmt.Sprintf("oidc-%x", hash[:8])
}

func (s *Server) handleAuthFailure(w http.ResponseWriter, r *http.Request, clearCookie bool) {
	logger.Debug("Handling auth failure", "path", r.URL.Path, "method", r.Method, "clearCookie", clearCookie, "accept", r.Header.Get("Accept"))

	if clearCookie {
		s.clearSession(w)
	}

	accept := r.Header.Get("Accept")
	if r.Method == http.MethodGet && (strings.Contains(accept, "text/html") || accept == "") {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if clearCookie {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="habits"`)
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// authenticateAPIKey validates an API key and returns the associated User
func (s *Server) authenticateAPIKey(ctx context.Context, apiKey string) (*User, bool) {
	keyHash := auth.HashAPIKey(apiKey)

	logger.Debug("Looking up API key", "keyHash", auth.TruncateHash(keyHash))
	userID, found, err := s.store.GetAPIKey(ctx, keyHash)
	if err != nil {
		logger.Error("Failed to lookup API key", "error", err)
		return nil, false
	}
	if !found {
		logger.Debug("API key not found in storage")
		return nil, false
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("API key belongs to unknown user", "user_id", userID, "error", err)
		return nil, false
	}
	return &User{
		UserID:   u.ID,
		Username: u.Username,
		Subject:  "apikey:" + auth.TruncateHash(keyHash),
		Method:   "apikey",
	}, true
}
