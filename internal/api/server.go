// Package api hosts the strikelab process endpoints: the JSON HTTP API and a
// gRPC listener exposing the standard health and reflection services.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"strikelab/internal/config"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	cfg    *config.Config
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger

	httpLn net.Listener
	grpcLn net.Listener
}

// NewServer creates a Server serving handler over HTTP. A zero gRPC port
// in cfg still opens a gRPC listener on an ephemeral port.
func NewServer(cfg *config.Config, handler http.Handler) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:   gs,
		health: hs,
		log:    slog.Default().With("component", "api"),
	}
}

// Listen opens both listeners. It is called by ListenAndServe and exposed so
// callers can learn the bound addresses first.
func (s *Server) Listen() error {
	httpAddr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", httpAddr, err)
	}
	grpcAddr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.GRPCPort))
	gln, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("listening on %s: %w", grpcAddr, err)
	}
	s.httpLn, s.grpcLn = ln, gln
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" before Listen.
func (s *Server) HTTPAddr() string { return addr(s.httpLn) }

// GRPCAddr returns the bound gRPC address, or "" before Listen.
func (s *Server) GRPCAddr() string { return addr(s.grpcLn) }

func addr(ln net.Listener) string {
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.httpLn == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.log.Info("serving", "http", s.HTTPAddr(), "grpc", s.GRPCAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.grpc.Serve(s.grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown marks the health service NOT_SERVING, drains in-flight HTTP
// requests and stops the gRPC server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("stopped")
	return nil
}
