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

	"mdwindow/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP and gRPC listeners of a Service.
type Server struct {
	svc      *Service
	httpAddr string
	grpcAddr string // empty disables gRPC
	log      *slog.Logger
}

// NewServer creates a Server configured from cfg.
func NewServer(cfg config.Server, svc *Service, log *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		httpAddr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		log:      log,
	}
	if cfg.GRPCPort >= 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort))
	}
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a listener fails. Both are shut down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLis net.Listener
	if s.grpcAddr != "" {
		if grpcLis, err = net.Listen("tcp", s.grpcAddr); err != nil {
			httpLis.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs on already-open listeners. A nil grpcLis disables gRPC.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var gs *grpc.Server
	if grpcLis != nil {
		gs = grpc.NewServer()
		NewGRPCServer(s.svc).Register(gs)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	if gs != nil {
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
			if err := gs.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if gs != nil {
			stopped := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutdownCtx.Done():
				gs.Stop()
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
