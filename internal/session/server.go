package session

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Server exposes the persona catalogue, metrics and the session websocket.
type Server struct {
	deps    Deps
	origins []string
	mux     *http.ServeMux
	wg      sync.WaitGroup
}

// NewServer wires the routes. origins are the allowed websocket origin
// patterns; same-origin requests are always accepted.
func NewServer(deps Deps, origins ...string) *Server {
	s := &Server{deps: deps, origins: origins, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /api/personas", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Personas.All())
	})
	s.mux.HandleFunc("GET /api/objectives", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Personas.Objectives())
	})
	s.mux.HandleFunc("GET /api/suggestions/{category}", func(w http.ResponseWriter, r *http.Request) {
		category := r.PathValue("category")
		writeJSON(w, http.StatusOK, map[string]any{
			"category":    category,
			"suggestions": deps.Personas.Suggestions(category),
		})
	})
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	s.mux.HandleFunc("GET /ws", s.serveWS)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Wait blocks until every open session has ended.
func (s *Server) Wait() { s.wg.Wait() }

// ListenAndServe serves addr until ctx ends, then shuts down and waits for
// sessions to release their browsers.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	s.wg.Add(1)
	defer s.wg.Done()

	sess := newSession(conn, s.deps)
	if err := sess.Serve(r.Context()); err != nil {
		sess.logger.Error().Err(err).Msg("session failed")
		conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
