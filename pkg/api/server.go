/*
 * Copyright 2026 Hostbeat Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP and websocket surface of hostbeat.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
	"github.com/hostbeat/hostbeat/pkg/netquery"
	"github.com/hostbeat/hostbeat/pkg/telemetry"
)

// SettingsService is the administrative settings surface. Updates require
// elevated privilege, enforced by the external auth layer in front of this
// API.
type SettingsService interface {
	Get(ctx context.Context, domain models.MetricDomain) (*models.DomainSettings, error)
	Update(ctx context.Context, domain models.MetricDomain, update *models.SettingsUpdate) (*models.DomainSettings, error)
}

// Resolver is the synchronous read path for one domain's snapshot.
type Resolver interface {
	Resolve(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, error)
}

// APIServer routes synchronous requests and hands websocket upgrades to the
// session manager.
type APIServer struct {
	router      *mux.Router
	corsConfig  models.CORSConfig
	apiKey      string
	resolver    Resolver
	settings    SettingsService
	search      *netquery.Engine
	broadcaster *telemetry.Broadcaster
	scheduler   *telemetry.Scheduler
	sessions    *SessionManager
	logger      logger.Logger
}

// NewAPIServer creates the API server with the given CORS policy.
func NewAPIServer(corsConfig models.CORSConfig, log logger.Logger, options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		router:     mux.NewRouter(),
		corsConfig: corsConfig,
		logger:     log,
	}

	for _, o := range options {
		o(s)
	}

	if s.sessions == nil {
		s.sessions = NewSessionManager(log)
	}

	s.setupRoutes()

	return s
}

// WithResolver sets the read-path resolver.
func WithResolver(r Resolver) func(*APIServer) {
	return func(server *APIServer) {
		server.resolver = r
	}
}

// WithSettingsService sets the settings store.
func WithSettingsService(s SettingsService) func(*APIServer) {
	return func(server *APIServer) {
		server.settings = s
	}
}

// WithSearchEngine sets the connection search engine.
func WithSearchEngine(e *netquery.Engine) func(*APIServer) {
	return func(server *APIServer) {
		server.search = e
	}
}

// WithBroadcaster sets the broadcaster sessions subscribe to.
func WithBroadcaster(b *telemetry.Broadcaster) func(*APIServer) {
	return func(server *APIServer) {
		server.broadcaster = b
	}
}

// WithScheduler exposes scheduler health on the health endpoint.
func WithScheduler(s *telemetry.Scheduler) func(*APIServer) {
	return func(server *APIServer) {
		server.scheduler = s
	}
}

// WithAPIKey sets the shared API key. An empty key disables the check
// (development mode).
func WithAPIKey(key string) func(*APIServer) {
	return func(server *APIServer) {
		server.apiKey = key
	}
}

func (s *APIServer) Router() http.Handler {
	return s.router
}

// Shutdown closes every live session.
func (s *APIServer) Shutdown() {
	s.sessions.CloseAll()
}

func (s *APIServer) setupRoutes() {
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/telemetry/{domain}", s.handleResolve).Methods(http.MethodGet)
	api.HandleFunc("/telemetry/{domain}/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/telemetry/{domain}/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/connections/groups", s.handleGroups).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

func (s *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)

			if s.corsConfig.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) originAllowed(origin string) bool {
	for _, allowed := range s.corsConfig.AllowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}

	return false
}

// authMiddleware checks the shared API key. Full authentication and
// privilege checks live in the external auth layer; with no key configured
// all requests pass (development mode).
func (s *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			if cookie, err := r.Cookie("api_key"); err == nil {
				key = cookie.Value
			}
		}

		if key != s.apiKey {
			writeError(w, "invalid or missing API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	domain := models.MetricDomain(mux.Vars(r)["domain"])
	if !domain.Valid() {
		writeError(w, "unknown metric domain", http.StatusNotFound)
		return
	}

	snapshot, err := s.resolver.Resolve(r.Context(), domain)
	if err != nil {
		s.logger.Error().Err(err).Str("domain", string(domain)).Msg("resolve failed")
		writeError(w, "failed to resolve snapshot", http.StatusBadGateway)

		return
	}

	writeJSON(w, snapshot, http.StatusOK)
}

func (s *APIServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	domain := models.MetricDomain(mux.Vars(r)["domain"])
	if !domain.Valid() {
		writeError(w, "unknown metric domain", http.StatusNotFound)
		return
	}

	settings, err := s.settings.Get(r.Context(), domain)
	if err != nil {
		s.logger.Error().Err(err).Str("domain", string(domain)).Msg("settings read failed")
		writeError(w, "failed to read settings", http.StatusInternalServerError)

		return
	}

	writeJSON(w, settings, http.StatusOK)
}

func (s *APIServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	domain := models.MetricDomain(mux.Vars(r)["domain"])
	if !domain.Valid() {
		writeError(w, "unknown metric domain", http.StatusNotFound)
		return
	}

	var update models.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "invalid settings payload", http.StatusBadRequest)
		return
	}

	settings, err := s.settings.Update(r.Context(), domain, &update)
	if err != nil {
		if errors.Is(err, models.ErrIntervalOutOfRange) || errors.Is(err, models.ErrCacheTTLOutOfRange) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.logger.Error().Err(err).Str("domain", string(domain)).Msg("settings update failed")
		writeError(w, "failed to update settings", http.StatusInternalServerError)

		return
	}

	writeJSON(w, settings, http.StatusOK)
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	kind := models.SearchKind(r.URL.Query().Get("kind"))
	value := r.URL.Query().Get("value")

	if value == "" {
		writeError(w, "value parameter is required", http.StatusBadRequest)
		return
	}

	result, err := s.search.Search(r.Context(), kind, value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

func (s *APIServer) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.search.GroupLive(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("connection grouping failed")
		writeError(w, "failed to group connections", http.StatusBadGateway)

		return
	}

	writeJSON(w, groups, http.StatusOK)
}

type healthResponse struct {
	Status     string                                           `json:"status"`
	Timestamp  time.Time                                        `json:"timestamp"`
	Sessions   int                                              `json:"sessions"`
	Domains    map[models.MetricDomain]telemetry.DomainHealth   `json:"domains,omitempty"`
	Broadcasts map[models.MetricDomain]telemetry.BroadcastStats `json:"broadcasts,omitempty"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Sessions:  s.sessions.Count(),
	}

	if s.scheduler != nil {
		resp.Domains = s.scheduler.Health()
	}

	if s.broadcaster != nil {
		resp.Broadcasts = s.broadcaster.Stats()
	}

	writeJSON(w, &resp, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, payload interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}
