package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/pigeon-feeder/internal/status"
)

// Admin serves the status snapshot and Prometheus metrics on a separate
// listener, so the command port keeps exactly its three routes.
type Admin struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// NewAdmin creates an Admin server. metrics is mounted at /metrics.
func NewAdmin(addr string, tracker *status.Tracker, metrics http.Handler) *Admin {
	a := &Admin{tracker: tracker}

	r := chi.NewRouter()
	r.Get("/status", a.handleStatus)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	r.Method(http.MethodGet, "/metrics", metrics)

	a.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return a
}

// Handler returns the routed handler. Useful for tests.
func (a *Admin) Handler() http.Handler {
	return a.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (a *Admin) ListenAndServe() error {
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (a *Admin) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
