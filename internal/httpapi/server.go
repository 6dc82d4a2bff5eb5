// Package httpapi exposes the session, the model cache and the model
// registry over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visiond/internal/blobs"
	"visiond/internal/events"
	"visiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.StatusResponse
	Ready() bool

	Toggle(task string) (types.ToggleResponse, error)
	Output(task string) (types.TaskOutput, bool, error)
	Logs(task string) ([]types.LogEntry, error)
	Distances() []types.Distance

	Models(ctx context.Context) (types.ModelsResponse, error)
	// StartDownload admits a download batch and runs it in the background.
	StartDownload(ctx context.Context, keys []string) ([]string, error)
	DeleteModel(ctx context.Context, key string) error
	DeleteAllModels(ctx context.Context) error

	Registry(ctx context.Context) (map[string]types.RemoteModelInfo, error)
	// ArchivePath resolves a locally served registry archive.
	ArchivePath(key, name string) (string, error)

	Blob(id string) (blobs.Blob, bool)
	Subscribe() (<-chan events.Event, func())
}

type handlers struct {
	svc Service
}

func NewMux(svc Service) http.Handler {
	h := &handlers{svc: svc}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)

		r.Get("/status", h.status)
		r.Route("/tasks/{kind}", func(r chi.Router) {
			r.Post("/toggle", h.toggle)
			r.Get("/output", h.output)
			r.Get("/logs", h.logs)
		})
		r.Get("/distances", h.distances)

		r.Get("/models", h.models)
		r.Post("/models/download", h.download)
		r.Delete("/models", h.deleteAll)
		r.Delete("/models/{key}", h.deleteModel)

		r.Get("/registry", h.registry)
		r.Get("/registry/archives/{key}/{name}", h.archive)

		r.Get("/blobs/{id}", h.blob)
		r.Get("/events", h.events)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if h.svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// status godoc
// @Summary      Session status
// @Description  Per-task worker state, frame manager counters and uptime.
// @Tags         tasks
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// toggle godoc
// @Summary      Start or stop a task worker
// @Tags         tasks
// @Produce      json
// @Param        kind  path  string  true  "depth, detection, captioning or audio"
// @Success      200  {object}  types.ToggleResponse
// @Failure      404  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /tasks/{kind}/toggle [post]
func (h *handlers) toggle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	kind := chi.URLParam(r, "kind")
	resp, err := h.svc.Toggle(kind)
	if err != nil {
		status := writeServiceError(w, err)
		logOutcome(r, "toggle", status, start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logOutcome(r, "toggle", http.StatusOK, start, nil)
}

// output godoc
// @Summary      Latest task result
// @Description  Returns 204 while the task has not completed an inference yet.
// @Tags         tasks
// @Produce      json
// @Param        kind  path  string  true  "depth, detection, captioning or audio"
// @Success      200  {object}  types.TaskOutput
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /tasks/{kind}/output [get]
func (h *handlers) output(w http.ResponseWriter, r *http.Request) {
	out, ok, err := h.svc.Output(chi.URLParam(r, "kind"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// logs godoc
// @Summary      Buffered worker log messages
// @Tags         tasks
// @Produce      json
// @Param        kind  path  string  true  "depth, detection, captioning or audio"
// @Success      200  {object}  types.LogsResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /tasks/{kind}/logs [get]
func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.Logs(chi.URLParam(r, "kind"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []types.LogEntry{}
	}
	writeJSON(w, http.StatusOK, types.LogsResponse{Logs: logs})
}

// distances godoc
// @Summary      Fused per-object distances
// @Tags         tasks
// @Produce      json
// @Success      200  {object}  types.DistancesResponse
// @Router       /distances [get]
func (h *handlers) distances(w http.ResponseWriter, r *http.Request) {
	d := h.svc.Distances()
	if d == nil {
		d = []types.Distance{}
	}
	writeJSON(w, http.StatusOK, types.DistancesResponse{Distances: d})
}

// models godoc
// @Summary      Model cache status
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Models(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// download godoc
// @Summary      Download and cache models
// @Description  Admits one rate-limited batch; progress is reported by GET /models and /events.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body  types.DownloadRequest  false  "Keys to download; empty downloads every registry key"
// @Success      202  {object}  types.DownloadResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      429  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /models/download [post]
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req types.DownloadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// The batch outlives the request; only server shutdown cancels it.
	keys, err := h.svc.StartDownload(baseContext(), req.Keys)
	if err != nil {
		status := writeServiceError(w, err)
		logOutcome(r, "download", status, start, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.DownloadResponse{Keys: keys})
	logOutcome(r, "download", http.StatusAccepted, start, nil)
}

// deleteModel godoc
// @Summary      Delete one cached model
// @Tags         models
// @Param        key  path  string  true  "model key"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{key} [delete]
func (h *handlers) deleteModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.svc.DeleteModel(r.Context(), chi.URLParam(r, "key")); err != nil {
		status := writeServiceError(w, err)
		logOutcome(r, "delete model", status, start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logOutcome(r, "delete model", http.StatusNoContent, start, nil)
}

// deleteAll godoc
// @Summary      Delete every cached model
// @Tags         models
// @Success      204
// @Router       /models [delete]
func (h *handlers) deleteAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.svc.DeleteAllModels(r.Context()); err != nil {
		status := writeServiceError(w, err)
		logOutcome(r, "delete models", status, start, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logOutcome(r, "delete models", http.StatusNoContent, start, nil)
}

// registry godoc
// @Summary      Latest model archive per key
// @Tags         registry
// @Produce      json
// @Success      200  {object}  map[string]types.RemoteModelInfo
// @Failure      503  {object}  types.ErrorResponse
// @Router       /registry [get]
func (h *handlers) registry(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Registry(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) archive(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ArchivePath(chi.URLParam(r, "key"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	http.ServeFile(w, r, p)
}

// blob godoc
// @Summary      Synthesized audio
// @Tags         tasks
// @Produce      audio/wav
// @Param        id  path  string  true  "blob id"
// @Success      200
// @Failure      404  {object}  types.ErrorResponse
// @Router       /blobs/{id} [get]
func (h *handlers) blob(w http.ResponseWriter, r *http.Request) {
	b, ok := h.svc.Blob(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "blob not found")
		return
	}
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(b.Data)
}
