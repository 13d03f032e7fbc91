// internal/api/http/work_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"work-pipeline/internal/config"
	"work-pipeline/internal/domain"
	"work-pipeline/internal/metrics"
	"work-pipeline/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WorkHandler serves the Work API.
type WorkHandler struct {
	service  *usecase.WorkService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	// pollInterval paces the event stream's store reads.
	pollInterval time.Duration
	// streamTimeout ends a stream that never sees compute/result.
	streamTimeout time.Duration
}

// NewWorkHandler creates a WorkHandler with the project's validator rules.
func NewWorkHandler(service *usecase.WorkService, logger *slog.Logger) *WorkHandler {
	return &WorkHandler{
		service:  service,
		logger:   logger.With("component", "work-handler"),
		validate: config.NewValidator(),
		tracer:   otel.Tracer("work-pipeline-api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pollInterval:  500 * time.Millisecond,
		streamTimeout: 5 * time.Minute,
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// instrument wraps a route with a span and the request counter, labelled by pattern.
func (h *WorkHandler) instrument(pattern string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+pattern, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// RegisterRoutes registers the Work API on mux. Anything unmatched gets a JSON 404.
func (h *WorkHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /work", h.instrument("/work", h.handleCreateWork))
	mux.Handle("GET /work/search", h.instrument("/work/search", h.handleSearchWork))
	mux.Handle("GET /work/{id}", h.instrument("/work/{id}", h.handleGetWork))
	mux.Handle("GET /events", h.instrument("/events", h.handleListEvents))
	mux.Handle("GET /events/stream", http.HandlerFunc(h.handleEventStream))
	mux.Handle("/", h.instrument("unmatched", h.handleNotFound))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *WorkHandler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, MessageResponse{Content: "route not found"})
}

// handleCreateWork handles POST /work.
func (h *WorkHandler) handleCreateWork(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.CreateWork")
	defer span.End()

	work, err := h.service.Create(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to create work in service")
		span.RecordError(err)
		h.logger.Error("error creating work", "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Content: "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, work)
}

// handleGetWork handles GET /work/{id}.
func (h *WorkHandler) handleGetWork(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetWork")
	defer span.End()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Content: "work id must be a positive integer"})
		return
	}
	span.SetAttributes(attribute.Int64("work.id", id))

	work, err := h.service.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get work from service")
		span.RecordError(err)
		if errors.Is(err, domain.ErrWorkNotFound) {
			writeJSON(w, http.StatusNotFound, MessageResponse{Content: err.Error()})
			return
		}
		h.logger.Error("error getting work", "work_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Content: "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, work)
}

// workCode reads and validates the work_code parameter, replying on failure.
func (h *WorkHandler) workCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := WorkCodeQuery{WorkCode: r.URL.Query().Get("work_code")}
	if err := h.validate.Struct(q); err != nil {
		var details []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, "Field 'work_code' failed on the '"+fe.Tag()+"' tag.")
			}
		}
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "Validation failed", Details: details})
		return "", false
	}
	return q.WorkCode, true
}

// handleSearchWork handles GET /work/search?work_code=prefix.
func (h *WorkHandler) handleSearchWork(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SearchWork")
	defer span.End()

	prefix, ok := h.workCode(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("work.code_prefix", prefix))

	works, err := h.service.Search(ctx, prefix)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to search works")
		span.RecordError(err)
		h.logger.Error("error searching works", "prefix", prefix, "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Content: "internal server error"})
		return
	}
	if works == nil {
		works = []*domain.Work{}
	}
	writeJSON(w, http.StatusOK, works)
}

// handleListEvents handles GET /events?work_code=code.
func (h *WorkHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListEvents")
	defer span.End()

	code, ok := h.workCode(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("work.code", code))

	events, err := h.service.ListEvents(ctx, code)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list events")
		span.RecordError(err)
		h.logger.Error("error listing events", "work_code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Content: "internal server error"})
		return
	}
	msgs := make([]EventMessage, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, NewEventMessage(e))
	}
	writeJSON(w, http.StatusOK, msgs)
}

// CORS wraps an http.Handler with permissive CORS headers for local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
