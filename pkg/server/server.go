// Package server exposes the webhook endpoint over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zonchen/homebot/pkg/line"
)

// EventHandler processes parsed webhook events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev line.Event)
}

// Server is the webhook HTTP server.
type Server struct {
	secret  string
	handler EventHandler
	port    int
}

// New creates a Server. secret is the channel secret used to verify webhook
// signatures.
func New(secret string, handler EventHandler, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{secret: secret, handler: handler, port: port}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "homebot is running!")
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Post("/callback", s.handleCallback)

	return r
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	fmt.Fprintf(os.Stderr, "homebot listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !line.ValidateSignature(s.secret, body, r.Header.Get("X-Line-Signature")) {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	events, err := line.ParseEvents(body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		s.handler.HandleEvent(r.Context(), ev)
	}
	fmt.Fprint(w, "OK")
}
