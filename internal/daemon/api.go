package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryan-cox/tempoledger/internal/history"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Busy       bool         `json:"busy"`
	StartedAt  time.Time    `json:"started_at"`
	SyncTime   string       `json:"sync_time"`
	NextSync   time.Time    `json:"next_sync"`
	LastSync   *history.Run `json:"last_sync,omitempty"`
	LastSubmit *history.Run `json:"last_submit,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns the local control API of d.
func NewRouter(d *Daemon) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/status", d.handleStatus)
	r.Get("/runs/{id}", d.handleRun)
	r.Post("/sync", d.handleSync)
	r.Post("/stop", d.handleStop)
	return r
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Busy:      d.Busy(),
		StartedAt: d.started,
		SyncTime:  d.syncTime,
		NextSync:  d.NextSync(),
	}
	if d.runs != nil {
		resp.LastSync = d.lastRun(history.KindSync)
		resp.LastSubmit = d.lastRun(history.KindSubmit)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) lastRun(kind string) *history.Run {
	run, err := d.runs.Last(kind)
	if err != nil {
		slog.Warn("failed to read run history", "kind", kind, "error", err)
		return nil
	}
	return run
}

func (d *Daemon) handleRun(w http.ResponseWriter, r *http.Request) {
	if d.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "run history is disabled"})
		return
	}
	run, err := d.runs.Get(chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		slog.Warn("failed to read run history", "id", chi.URLParam(r, "id"), "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (d *Daemon) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := d.StartSync(history.TriggerAPI); err != nil {
		if errors.Is(err, ErrBusy) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (d *Daemon) handleStop(w http.ResponseWriter, r *http.Request) {
	d.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
