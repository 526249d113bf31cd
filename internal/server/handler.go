package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
	"github.com/contextgate/contextgate/internal/storage"
)

const defaultListLimit = 50

// Handler serves the vetting API: it feeds incoming payloads through the
// pipeline and exposes persisted run records.
type Handler struct {
	runner    *pipeline.Runner
	transform pipeline.TransformFunc
	store     storage.RunStore
	opts      func() pipeline.Options
	logger    *slog.Logger
}

type HandlerConfig struct {
	Runner    *pipeline.Runner
	Transform pipeline.TransformFunc
	// Store is optional. When nil, runs are not persisted and the runs
	// endpoints report 404.
	Store storage.RunStore
	// Options is read per request so config reloads take effect without a
	// restart. When nil the pipeline defaults apply.
	Options func() pipeline.Options
	Logger  *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		runner:    cfg.Runner,
		transform: cfg.Transform,
		store:     cfg.Store,
		opts:      cfg.Options,
		logger:    cfg.Logger,
	}
	if h.opts == nil {
		h.opts = pipeline.DefaultOptions
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register mounts the API routes on the router.
func (h *Handler) Register(r chi.Router, registry *prometheus.Registry) {
	r.Post("/v1/vet", h.HandleVet)
	r.Get("/v1/runs", h.HandleListRuns)
	r.Get("/v1/runs/{id}", h.HandleGetRun)
	r.Get("/healthz", h.HandleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
}

// HandleVet handles POST /v1/vet
func (h *Handler) HandleVet(w http.ResponseWriter, r *http.Request) {
	var payload domain.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	requestID := GetRequestID(r.Context())
	res := h.runner.Run(r.Context(), payload, h.transform, h.opts())

	h.logger.Info("vet request",
		slog.String("request_id", requestID),
		slog.Bool("ok", res.OK),
		slog.Int("stages", len(res.Trace)),
	)

	if h.store != nil {
		rec := storage.NewRunRecord(requestID, payload, res)
		if err := h.store.SaveRun(r.Context(), rec); err != nil {
			h.logger.Error("failed to persist run", slog.String("request_id", requestID), slog.String("error", err.Error()))
		}
	}

	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

// HandleGetRun handles GET /v1/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Run storage is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Run not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// HandleListRuns handles GET /v1/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Run storage is not enabled")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if recs == nil {
		recs = []*storage.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": recs})
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
