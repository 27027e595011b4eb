package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"time"

	"github.com/habitkit/habits/internal/logger"

	"github.com/gorilla/securecookie"
)

const (
	sessionCookieName = "session"
	sessionMaxAge     = 7 * 24 * time.Hour
)

type session struct {
	UserID   int64
	IssuedAt int64
}

// newSessionCookie derives the signing and encryption keys from secret. With
// no secret the keys are random and sessions do not survive a restart.
func newSessionCookie(secret string) (*securecookie.SecureCookie, error) {
	var hashKey, blockKey []byte
	if secret == "" {
		logger.Warn("No secret_key configured, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil || blockKey == nil {
			return nil, errors.New("failed to generate secure cookie keys")
		}
	} else {
		h := sha256.Sum256([]byte("habits-session-hash:" + secret))
		b := sha256.Sum256([]byte("habits-session-block:" + secret))
		hashKey, blockKey = h[:], b[:]
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionMaxAge.Seconds()))
	return sc, nil
}

func (s *Server) setSession(w http.ResponseWriter, userID int64) error {
	val, err := s.sessionCookie.Encode(sessionCookieName, session{UserID: userID, IssuedAt: s.now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return nil
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionUserID returns the user id carried by a valid session cookie.
func (s *Server) sessionUserID(r *http.Request) (int64, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return 0, false
	}
	var sess session
	if err := s.sessionCookie.Decode(sessionCookieName, c.Value, &sess); err != nil {
		logger.Debug("Failed to decode session cookie", "error", err)
		return 0, false
	}
	return sess.UserID, sess.UserID > 0
}

type userCtxKey struct{}

// User is the authenticated caller attached to the request context.
type User struct {
	UserID   int64
	Username string
	Subject  string
	Email    string
	Method   string
}

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

func userFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*User)
	return u, ok && u != nil
}

// userIDFromContext extracts user ID from authenticated request context
func userIDFromContext(r *http.Request) int64 {
	u, ok := userFromContext(r.Context())
	if !ok {
		logger.Error("No user in context", "path", r.URL.Path)
		return 0
	}
	return u.UserID
}
