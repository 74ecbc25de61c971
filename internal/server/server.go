/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Queries are the read and feedback operations behind the REST routes
type Queries interface {
	HealthCheck(ctx context.Context) error
	ClientEnv() json.RawMessage
	MintFees(ctx context.Context, assetType models.AssetType, chains []string, payloadBytes int) *models.FeesResult
	TransactionHistory(ctx context.Context, pubkey string, limit, offset int) *models.HistoryResult
	TransactionDetails(ctx context.Context, id string) *models.DetailsResult
	SubmitFeedback(ctx context.Context, feedback models.Feedback) *models.FeedbackResult
}

// Pipelines starts minting pipelines
type Pipelines interface {
	Start(req models.MintRequest) <-chan models.Event
}

// Server exposes the REST routes and the mint event socket
type Server struct {
	cfg       models.ServerConfig
	queries   Queries
	pipelines Pipelines
	limiter   *RateLimiter
	handler   http.Handler
	http      *http.Server
}

func New(cfg models.ServerConfig, queries Queries, pipelines Pipelines) *Server {
	s := &Server{
		cfg:       cfg,
		queries:   queries,
		pipelines: pipelines,
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/mint", s.limited(s.handleMintSocket))

	r.Group(func(r chi.Router) {
		if s.cfg.WriteTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.WriteTimeout))
		}
		r.Get("/cli-env", s.handleClientEnv)
		r.Get("/mint-fees", s.handleMintFees)
		r.Get("/all-tx-history", s.handleHistory)
		r.Get("/tx-details", s.handleDetails)
		r.Post("/submit-feedback", s.limited(s.handleFeedback))
	})
	return r
}

func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return s.limiter.Middleware(h).ServeHTTP
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Running pipelines are not affected.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("ip", clientIP(r)),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}
