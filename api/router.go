// Package api serves a media.Store over HTTP.
package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/opentdf/drmpolicy/internal/metrics"
	"github.com/opentdf/drmpolicy/pkg/media"
	"go.uber.org/zap"
)

type Options struct {
	Store   media.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Auth guards /api when set.
	Auth           func(http.Handler) http.Handler
	AllowedOrigins []string
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type storeHandler struct {
	store   media.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRouter mounts the store routes under /api next to /healthz and
// /metrics.
func NewRouter(opts Options) chi.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	h := storeHandler{store: opts.Store, logger: opts.Logger, metrics: opts.Metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(opts.Metrics.Middleware)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", opts.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Mount("/contentkeys", h.contentKeyRoutes())
		r.Mount("/options", h.optionRoutes())
		r.Mount("/policies", h.policyRoutes())
		r.Mount("/assets", h.assetRoutes())
		r.Mount("/deliverypolicies", h.deliveryPolicyRoutes())
		r.Mount("/accesspolicies", h.accessPolicyRoutes())
		r.Mount("/locators", h.locatorRoutes())
	})
	return r
}

// Walk logs every registered route.
func Walk(r chi.Router, logger *zap.Logger) error {
	return chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("loaded route", zap.String("method", method), zap.String("route", route))
		return nil
	})
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, media.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, media.ErrConfiguration):
		return http.StatusBadRequest, "configuration"
	}
	return http.StatusInternalServerError, "internal"
}

func (h storeHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, kind := statusFor(err)
	h.metrics.StoreErrors.WithLabelValues(kind).Inc()
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h storeHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, "could not decode request", errors.Join(media.ErrConfiguration, err))
		return false
	}
	return true
}
