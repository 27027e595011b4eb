package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/habitkit/habits/internal/config"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/streak"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg           *config.Config
	store         storage.Store
	loc           *time.Location
	now           func() time.Time
	sessionCookie *securecookie.SecureCookie
	authProviders map[string]*AuthProvider
	templates     *template.Template
}

func New(cfg *config.Config, store storage.Store) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	sc, err := newSessionCookie(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           cfg,
		store:         store,
		loc:           loc,
		now:           time.Now,
		sessionCookie: sc,
		templates:     tmpl,
	}

	if len(cfg.OIDCProviders) > 0 {
		s.authProviders, err = ConfigureOIDCProviders(context.Background(), cfg.OIDCProviders)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// today is the current civil date in the configured time zone.
func (s *Server) today() time.Time {
	return streak.Day(s.now(), s.loc)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/version", s.getVersionInfo)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/register", s.registerPage)
	r.Post("/register", s.register)
	r.Get("/login", s.loginPage)
	r.Post("/login", s.login)
	r.Post("/logout", s.logout)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login/{provider}", s.oidcLogin)
		r.Get("/callback/{provider}", s.oidcCallback)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/api_keys", s.generateAPIKey)
			r.Get("/api_keys", s.listAPIKeys)
			r.Delete("/api_keys/{hash}", s.deleteAPIKey)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.userAwareMetricsMiddleware)

		r.Get("/", s.index)
		r.Post("/", s.createHabitForm)
		r.Post("/toggle/{id}", s.toggleForm)
		r.Post("/edit/{id}", s.editForm)
		r.Post("/delete/{id}", s.deleteForm)
		r.Get("/stats", s.statsPage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", s.getStats)
			r.Route("/habits", func(r chi.Router) {
				r.Get("/", s.listHabits)
				r.Post("/", s.createHabit)
				r.Get("/{id}", s.getHabit)
				r.Put("/{id}", s.updateHabit)
				r.Delete("/{id}", s.deleteHabit)
				r.Post("/{id}/toggle", s.toggleHabit)
				r.Get("/{id}/summary", s.getHabitSummary)
			})
		})
	})

	logger.Debug("Router configured", "oidc_providers", len(s.authProviders))
	return r
}
