// Package grpchealth exposes the standard gRPC health service backed by a
// database probe.
package grpchealth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "nutribot"

// Pinger is satisfied by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds health server settings.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 15 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// Server serves grpc.health.v1.Health and keeps its status in sync with the
// database.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	db     Pinger
	cfg    Config
	logger *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a health server. Nothing listens until Serve is called.
func NewServer(db Pinger, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig().ProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}

	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:   gs,
		health: hs,
		db:     db,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Serve probes the database once, starts the probe loop and blocks serving
// lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.probe()

	s.wg.Add(1)
	go s.watch()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.health.Shutdown()
		s.grpc.GracefulStop()
		s.wg.Wait()
	})
}

func (s *Server) watch() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.probe()
		}
	}
}

func (s *Server) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProbeTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("Database probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
