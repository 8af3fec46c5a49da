package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/valora-verify/internal/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 90 * time.Second
	shutdownTimeout   = 10 * time.Second
	// provingBudget covers proof generation and the registry write.
	provingBudget  = 90 * time.Second
	maxHeaderBytes = 64 << 10
)

// Timeouts bound a single request.
type Timeouts struct {
	ReadHeader time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

// TimeoutsFor sizes the write timeout for a callback, which makes two
// provider calls and runs the prover before it can respond.
func TimeoutsFor(cfg config.Config) Timeouts {
	provider := cfg.ProviderTimeout
	if provider <= 0 {
		provider = 10 * time.Second
	}
	return Timeouts{
		ReadHeader: readHeaderTimeout,
		Write:      2*provider + provingBudget,
		Idle:       idleTimeout,
		Shutdown:   shutdownTimeout,
	}
}

// HTTPServer serves the verification API with graceful shutdown.
type HTTPServer struct {
	Engine   *gin.Engine
	Timeouts Timeouts
	logger   *zap.Logger
}

// NewHTTPServer applies engine defaults shared by every deployment.
func NewHTTPServer(router *gin.Engine, cfg config.Config, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{
		Engine:   router,
		Timeouts: TimeoutsFor(cfg),
		logger:   logger.Named("http"),
	}
}

// Run listens on addr and serves until ctx is done.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// callbacks for up to the shutdown timeout.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	errorLog, err := zap.NewStdLogAt(s.logger, zap.WarnLevel)
	if err != nil {
		return fmt.Errorf("server error log: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: s.Timeouts.ReadHeader,
		WriteTimeout:      s.Timeouts.Write,
		IdleTimeout:       s.Timeouts.Idle,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          errorLog,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Timeouts.Shutdown)
		defer cancel()
		s.logger.Info("draining connections", zap.Duration("timeout", s.Timeouts.Shutdown))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
