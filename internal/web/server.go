// Package web provides the feeder's HTTP command server and the optional
// admin listener for status and metrics.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

// Response bodies outside the per-action confirmations.
const (
	bodyNotFound       = "Command not found"
	bodyUnsupported    = "Unsupported method"
	bodyActuationError = "Actuation failed"
)

// Actuator runs one timed actuation and blocks until it is complete.
type Actuator interface {
	Run(a feeder.Action) (feeder.Event, error)
}

// Server dispatches GET /flush, /seeds and /water to the actuator.
// Requests are answered one at a time, in arrival order at the lock,
// whatever their path or method.
type Server struct {
	httpServer *http.Server
	act        Actuator

	mu sync.Mutex
}

// New creates a Server that drives the given actuator.
func New(addr string, act Actuator) *Server {
	s := &Server{act: act}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.serial)
	r.Use(middleware.Recoverer)
	r.Use(getOnly)

	for _, a := range feeder.Actions {
		r.Get("/"+string(a), s.handleAction(a))
	}
	r.NotFound(notFound)
	return r
}

// Handler returns the routed handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight commands.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleAction runs the actuation before writing anything, so the response
// is only sent once the actuator is back at rest.
func (s *Server) handleAction(a feeder.Action) http.HandlerFunc {
	target := "/" + string(a)
	return func(w http.ResponseWriter, r *http.Request) {
		// chi routes on the path alone; the raw target must match exactly,
		// so "/flush?x=1" and "http://host/flush" are unknown commands.
		if r.RequestURI != target {
			notFound(w, r)
			return
		}
		ev, err := s.act.Run(a)
		if err != nil {
			log.Printf("http: %s from %s failed after %v: %v", a, r.RemoteAddr, ev.Elapsed, err)
			writeText(w, http.StatusInternalServerError, bodyActuationError)
			return
		}
		log.Printf("http: %s from %s done in %v", a, r.RemoteAddr, ev.Elapsed)
		writeText(w, http.StatusOK, a.Message())
	}
}

// serial holds the server lock for the whole request, so a 404 or 501
// arriving during a hold waits for it like any command would.
func (s *Server) serial(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, bodyNotFound)
}

// getOnly rejects every other method, for every path, before routing.
// HEAD is rejected too: it must never trigger an actuation.
func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeText(w, http.StatusNotImplemented, bodyUnsupported)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body))
}
