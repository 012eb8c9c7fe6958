// Package web serves the station status page, its JSON form, and a compact
// control view for live plotting. Every response is a fresh snapshot and is
// never cached. The server is read only.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/t12-station/internal/control"
	"github.com/sweeney/t12-station/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/control.json", s.handleControl)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           readOnly(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// ControlView is the body of /control.json.
type ControlView struct {
	Mode     string  `json:"mode"`
	Tip      int     `json:"tip"`
	Setpoint int     `json:"setpoint"`
	Drive    int     `json:"drive"`
	PowerW   float64 `json:"power_w"`
	Fault    bool    `json:"fault"`
	Boost    *Boost  `json:"boost,omitempty"`
	Ticks    uint64  `json:"ticks"`
}

// Boost is an active boost override.
type Boost struct {
	Kind        control.BoostKind `json:"kind"`
	Value       int               `json:"value"`
	RemainingMs int64             `json:"remaining_ms"`
}

func controlView(snap status.Snapshot) ControlView {
	v := ControlView{
		Mode:     snap.Status(),
		Tip:      snap.Reading.Tip,
		Setpoint: snap.Setpoint,
		Drive:    snap.Drive,
		PowerW:   snap.Power(),
		Fault:    snap.Reading.Fault,
		Ticks:    snap.Ticks,
	}
	if snap.Loop.Boosting(snap.Now) {
		v.Boost = &Boost{
			Kind:        snap.Loop.BoostKind,
			Value:       snap.Loop.BoostValue,
			RemainingMs: snap.Loop.BoostDeadline.Sub(snap.Now).Milliseconds(),
		}
	}
	return v
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(controlView(s.tracker.Snapshot()))
}

// readOnly rejects anything but GET and HEAD and marks responses uncacheable.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
