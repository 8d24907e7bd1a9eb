package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"snapdiff/internal/pipeline"
	"snapdiff/internal/storage"

	"github.com/gorilla/mux"
)

// Subscriber is the part of the pipeline the server streams from.
type Subscriber interface {
	Subscribe() (<-chan pipeline.Result, func())
}

// Server exposes verdict history and live results over HTTP.
type Server struct {
	addr      string
	store     *storage.Store
	pipeline  Subscriber
	artifacts string
	log       *slog.Logger
	hub       *hub
	server    *http.Server
}

// NewServer creates a server. artifacts is the screenshot area served
// under /artifacts/; empty disables it.
func NewServer(addr string, store *storage.Store, pipe Subscriber, artifacts string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:      addr,
		store:     store,
		pipeline:  pipe,
		artifacts: artifacts,
		log:       log,
		hub:       newHub(log),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is done, relaying pipeline results to websocket
// clients meanwhile.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)
	if s.pipeline != nil {
		go s.relay(ctx)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/verdicts", s.handleVerdicts).Methods("GET")
	r.HandleFunc("/flaky", s.handleFlaky).Methods("GET")
	r.HandleFunc("/stream", s.handleStream).Methods("GET")
	r.HandleFunc("/ws", s.hub.serveWS).Methods("GET")
	if s.artifacts != "" {
		r.PathPrefix("/artifacts/").Handler(http.StripPrefix("/artifacts/", http.FileServer(http.Dir(s.artifacts))))
	}
}

// relay forwards pipeline results to the websocket hub.
func (s *Server) relay(ctx context.Context) {
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, err := json.Marshal(NewResultEvent(res))
			if err != nil {
				continue
			}
			s.hub.publish(payload)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	recs, err := s.store.RecentVerdicts(r.URL.Query().Get("identity"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.FlakyIdentities(queryInt(r, "limit", 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		http.Error(w, "no pipeline", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(NewResultEvent(res))
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
