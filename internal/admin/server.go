package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the admin listener and owns the orderly teardown of the
// process resources behind it: once the listener has stopped, the onClose
// hooks run in order, so pools and connections close only after no handler
// can still touch them.
type Server struct {
	srv           *http.Server
	shutdownGrace time.Duration
	log           *slog.Logger
	onClose       []func()
}

// NewServer builds the admin server. shutdownGrace bounds how long in-flight
// requests get to finish after the stop signal.
func NewServer(handler http.Handler, addr string, shutdownGrace time.Duration, log *slog.Logger, onClose ...func()) *Server {
	if shutdownGrace <= 0 {
		shutdownGrace = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		shutdownGrace: shutdownGrace,
		log:           log,
		onClose:       onClose,
	}
}

// Run blocks until ctx is cancelled or the listener fails, then drains
// in-flight requests and runs the teardown hooks.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin server listening", slog.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		if shutdownErr := s.srv.Shutdown(shutdownCtx); shutdownErr != nil {
			s.log.Error("admin server shutdown", slog.String("error", shutdownErr.Error()))
		}
		cancel()
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	for _, fn := range s.onClose {
		fn()
	}
	s.log.Info("admin server stopped")
	return err
}
