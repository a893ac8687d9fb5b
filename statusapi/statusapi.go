// Package statusapi is a read-only HTTP surface reporting live relay
// status — accepted/active connection counts and per-listener
// configuration — for operational visibility. It is not part of the
// core engine spec describes; it exists the way the teacher's own
// server package exposes a status surface over its domain state, built
// on the same router library.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Stats is updated by relay.Server as connections come and go;
// relay.Tunnel does not update it.
type Stats struct {
	Accepted int64
	Active   int64
	Rejected int64
}

// Every method is a no-op on a nil *Stats, so callers that don't wire a
// status API in don't need a conditional at each call site.

func (s *Stats) IncAccepted() {
	if s != nil {
		atomic.AddInt64(&s.Accepted, 1)
	}
}

func (s *Stats) IncActive() {
	if s != nil {
		atomic.AddInt64(&s.Active, 1)
	}
}

func (s *Stats) DecActive() {
	if s != nil {
		atomic.AddInt64(&s.Active, -1)
	}
}

func (s *Stats) IncRejected() {
	if s != nil {
		atomic.AddInt64(&s.Rejected, 1)
	}
}

func (s *Stats) snapshot() map[string]int64 {
	if s == nil {
		return map[string]int64{"accepted": 0, "active": 0, "rejected": 0}
	}
	return map[string]int64{
		"accepted": atomic.LoadInt64(&s.Accepted),
		"active":   atomic.LoadInt64(&s.Active),
		"rejected": atomic.LoadInt64(&s.Rejected),
	}
}

// API serves /status and /servers/{name} over a gorilla/mux router.
type API struct {
	port       int
	mode       string
	cipher     string
	stats      *Stats
	router     *mux.Router
	httpServer *http.Server
}

// New builds an API bound to port, reporting as the given deployment
// mode ("server" or "tunnel") and cipher name.
func New(port int, mode, cipher string, stats *Stats) *API {
	a := &API{
		port:   port,
		mode:   mode,
		cipher: cipher,
		stats:  stats,
		router: mux.NewRouter(),
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/status", a.handleStatus).Methods("GET")
	a.router.HandleFunc("/servers/{name}", a.handleServer).Methods("GET")
	a.router.Use(loggingMiddleware)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("statusapi: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":   a.mode,
		"cipher": a.cipher,
		"stats":  a.stats.snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleServer reports the status of a single named listener; with a
// single relay per process today this just echoes the overall status
// under the requested name, leaving room for a future multi-listener
// deployment to key Stats by name instead.
func (a *API) handleServer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	resp := map[string]any{
		"name":   name,
		"mode":   a.mode,
		"cipher": a.cipher,
		"stats":  a.stats.snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.router,
	}

	go func() {
		<-ctx.Done()
		a.httpServer.Shutdown(context.Background())
	}()

	log.Infof("statusapi: listening on :%d", a.port)
	err := a.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
