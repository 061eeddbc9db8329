// Package rest exposes the analysis orchestrator over HTTP. The core
// lifecycle and aggregation logic lives in internal/analyze and
// internal/finder; this package only routes, decodes and encodes.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/finchlyline/relsleuth/internal/analyze"
	"github.com/finchlyline/relsleuth/internal/model"
)

type Router struct {
	manager   *analyze.Manager
	publicURL string
}

func NewRouter(manager *analyze.Manager, cfg model.Server) http.Handler {
	r := &Router{manager: manager, publicURL: cfg.PublicURL}

	mux := chi.NewRouter()
	mux.Use(RequestLogger)
	if cfg.CORS {
		mux.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/version", handleVersion)

	mux.Route("/api/analyze", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleSubmit))
		rt.Get("/{id}", r.wrap(r.handleStatus))
		rt.Post("/{id}/cancel", r.wrap(r.handleCancel))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errNotFound marks ids that are unknown, expired or already terminal
// for cancellation purposes. These are indistinguishable by design.
var errNotFound = errors.New("not found")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		switch {
		case err == nil:
		case errors.Is(err, errNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, analyze.ErrNoURLs), errors.Is(err, analyze.ErrNoCallback):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /api/analyze
// Returns 202 with the id and the status/cancel URLs before any
// resolution work happens.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var payload model.AnalyzePayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return nil
	}

	id, err := r.manager.Submit(req.Context(), payload)
	if err != nil {
		return err
	}

	base := r.base(req)
	return respond(w, http.StatusAccepted, model.AnalyzeResponse{
		ID:        id,
		StatusURL: fmt.Sprintf("%s/api/analyze/%s", base, id),
		CancelURL: fmt.Sprintf("%s/api/analyze/%s/cancel", base, id),
	})
}

// GET /api/analyze/{id}
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	job, ok := r.manager.Status(id)
	if !ok {
		return errNotFound
	}
	return respond(w, http.StatusOK, job)
}

// POST /api/analyze/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if !r.manager.Cancel(id) {
		return errNotFound
	}
	return respond(w, http.StatusOK, map[string]string{"id": id, "status": "cancelling"})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	out := map[string]string{"version": "unknown"}
	if info, ok := debug.ReadBuildInfo(); ok {
		out["version"] = info.Main.Version
		out["go"] = info.GoVersion
	}
	_ = respond(w, http.StatusOK, out)
}

func (r *Router) base(req *http.Request) string {
	if r.publicURL != "" {
		return r.publicURL
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host
}

func respond(w http.ResponseWriter, code int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}
