// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmorrell/rollcall/internal/config"
	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/middleware"
	"github.com/jmorrell/rollcall/internal/quota"
)

// SyncFunc runs one synchronization for a troupe.
type SyncFunc func(ctx context.Context, troupeID string) error

// Enqueuer hands a sync request to the queue. Nil on the Server means the
// queue is disabled and syncs run inline.
type Enqueuer interface {
	Enqueue(ctx context.Context, troupeID string) error
}

// Server is the HTTP surface over the engine.
type Server struct {
	db      *database.DB
	quota   *quota.Service
	syncFn  SyncFunc
	enqueue Enqueuer
	server  config.ServerConfig
	api     config.APIConfig
}

// New assembles the HTTP server. enqueue may be nil.
func New(db *database.DB, q *quota.Service, syncFn SyncFunc, enqueue Enqueuer, cfg *config.Config) *Server {
	return &Server{
		db:      db,
		quota:   q,
		syncFn:  syncFn,
		enqueue: enqueue,
		server:  cfg.Server,
		api:     cfg.API,
	}
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", s.HealthLive)
	r.Get("/readyz", s.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.server.RateLimitReqs, s.server.RateLimitWindow))
		r.Use(middleware.Prometheus)

		r.Get("/troupes", s.ListTroupes)
		r.Route("/troupes/{troupeID}", func(r chi.Router) {
			r.Get("/", s.GetTroupe)
			r.Put("/", s.PutTroupe)
			r.Post("/sync", s.TriggerSync)
			r.Get("/members", s.ListMembers)
			r.Get("/events", s.ListEvents)
			r.Get("/event-types", s.ListEventTypes)
			r.Put("/event-types/{typeID}", s.PutEventType)
			r.Get("/quota", s.GetQuota)
		})
		r.Get("/members/{memberID}", s.GetMember)
	})

	return r
}

// Serve runs the HTTP server until ctx is done. Implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.server.Host, strconv.Itoa(s.server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.server.ReadTimeout,
		WriteTimeout: s.server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) String() string { return "api.Server" }
