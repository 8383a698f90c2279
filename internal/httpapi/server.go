// Package httpapi serves freelancer search over HTTP with chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/indexer"
	zlog "github.com/dshills/gigsearch/internal/logger"
	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/pkg/types"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// Engine is the part of the search engine the handlers call
type Engine interface {
	SearchDetailed(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
	OnProfileChanged(ctx context.Context, id int64) indexer.Result
	Bootstrap(ctx context.Context, force bool) (*types.BootstrapReport, error)
	Health(ctx context.Context) types.Health
}

// ProfileReader loads the profiles behind ranked ids
type ProfileReader interface {
	GetProfiles(ctx context.Context, ids []int64) (map[int64]*types.FreelancerProfile, error)
}

// Server holds the HTTP handlers
type Server struct {
	engine   Engine
	profiles ProfileReader
	logger   *zap.Logger
}

// NewServer creates the handler set
func NewServer(eng Engine, profiles ProfileReader, logger *zap.Logger) *Server {
	return &Server{engine: eng, profiles: profiles, logger: zlog.OrNop(logger).Named("http")}
}

// Router builds the chi router with middleware and routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/freelancers", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Post("/{id}/reindex", s.handleReindex)
	})
	r.Post("/index/bootstrap", s.handleBootstrap)
	return r
}

// NewHTTPServer wraps handler with the configured timeouts
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

// requestID propagates X-Request-ID, minting a uuid when the client sent none
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chiMiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog emits one log line per request and puts a request-scoped logger in the context
func accessLog(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
			ctx := zlog.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered", zap.Any("panic", rvr), zap.Stack("stacktrace"))
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Msg: msg})
}

// writeDomainError maps engine errors onto status codes without leaking internals
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, indexer.ErrBootstrapInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrIndexUnavailable):
		zlog.FromContext(ctx).Error("search unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "search temporarily unavailable")
	default:
		zlog.FromContext(ctx).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &types.ValidationError{Field: "limit", Value: raw, Reason: "not an integer"}
	}
	return n, nil
}
