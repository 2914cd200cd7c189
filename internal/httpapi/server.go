package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/store"
	"github.com/abdullahx404/startsmart/internal/suitability"
)

// History is the subset of the history store the API needs; nil
// disables persistence and the history endpoints report it.
type History interface {
	Save(ctx context.Context, req suitability.Request, rec *suitability.CombinedRecommendation) (string, error)
	Get(ctx context.Context, id string) (*store.Entry, *suitability.CombinedRecommendation, error)
	List(ctx context.Context, cellID string, limit int) ([]store.Entry, error)
}

type Server struct {
	pipeline      *suitability.Orchestrator
	history       History
	limiter       *rate.Limiter
	batchMaxItems int
}

type Options struct {
	RequestsPerMin int
	BatchMaxItems  int
}

func NewServer(pipeline *suitability.Orchestrator, history History, opts Options) http.Handler {
	if opts.RequestsPerMin <= 0 {
		opts.RequestsPerMin = 120
	}
	if opts.BatchMaxItems <= 0 {
		opts.BatchMaxItems = 50
	}
	s := &Server{
		pipeline:      pipeline,
		history:       history,
		limiter:       rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMin)/60.0), opts.RequestsPerMin),
		batchMaxItems: opts.BatchMaxItems,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/v1/recommendations/fast", s.handleRecommend(suitability.ModeFast))
		r.Post("/v1/recommendations/full", s.handleRecommend(suitability.ModeFull))
		r.Post("/v1/recommendations/debug", s.handleDebug)
		r.Post("/v1/recommendations/batch", s.handleBatch)
		r.Get("/v1/history", s.handleHistoryList)
		r.Get("/v1/history/{id}", s.handleHistoryGet)
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

var startedAt = time.Now()

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "history persistence is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	entries, err := s.history.List(r.Context(), r.URL.Query().Get("cell_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": entries})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "history persistence is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	entry, rec, err := s.history.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no recommendation with id "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entry": entry, "result": rec})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": map[string]any{"code": code, "message": message},
	})
}

// writePipelineError maps the error taxonomy onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) {
	var ve *suitability.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}
	var ese *suitability.ExternalServiceError
	if errors.As(err, &ese) {
		writeError(w, http.StatusBadGateway, "external_service_error", ese.Error())
		return
	}
	var pte *suitability.PipelineTimeoutError
	if errors.As(err, &pte) {
		writeError(w, http.StatusGatewayTimeout, "pipeline_timeout", pte.Error())
		return
	}
	var cef *suitability.ContextualEvaluationFailure
	if errors.As(err, &cef) {
		writeError(w, http.StatusBadGateway, "contextual_evaluation_failure", cef.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
