package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/thejerf/suture/v4"
)

type Runner interface {
	Queue() string
	Run(ctx context.Context) error
}

// PollerService adapts a queue poller to suture.Service. The poller is only
// expected to stop when its context ends; any other return is logged as
// unexpected.
type PollerService struct {
	runner Runner
	name   string
}

func NewPollerService(runner Runner) *PollerService {
	return &PollerService{runner: runner, name: "poller-" + runner.Queue()}
}

func (s *PollerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log := logger.FromContext(ctx).With("service", s.name)
	if err == nil {
		log.Error("poller returned unexpectedly, not restarting")
		return suture.ErrDoNotRestart
	}
	log.Error("poller failed unexpectedly", "error", err)
	return fmt.Errorf("%s: %w", s.name, err)
}

func (s *PollerService) String() string {
	return s.name
}

type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "ops-http",
	}
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return h.name
}
