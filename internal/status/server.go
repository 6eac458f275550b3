package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/ratemeter/internal/httputil"
	"github.com/banshee-data/ratemeter/internal/monitoring"
	"github.com/banshee-data/ratemeter/internal/version"
)

const noDataMsg = "no rates published yet"

// Server serves the Board over HTTP.
type Server struct {
	address string
	board   *Board
	server  *http.Server
}

// NewServer creates a server for board listening on address.
func NewServer(address string, board *Board) *Server {
	s := &Server{address: address, board: board}
	s.server = &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/chart", s.handleChart)
	mux.HandleFunc("/plot.png", s.handlePlot)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting status server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("status server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("status server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":      "ok",
		"version":     version.Version,
		"git_sha":     version.GitSHA,
		"instance_id": s.board.InstanceID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := s.board.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, noDataMsg)
		return
	}
	httputil.WriteJSONOK(w, snap)
}
