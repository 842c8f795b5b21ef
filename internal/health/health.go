// Package health serves the standard gRPC health protocol for the swing
// report server, so supervisors can probe the database and the hub link.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/timeutil"
)

var logf = monitoring.Component("health")

// Check probes one dependency. A nil error means serving.
type Check func(ctx context.Context) error

// Server runs checks periodically and publishes each as a named health
// service. The overall status ("") is serving only while every check is.
type Server struct {
	Interval time.Duration
	Clock    timeutil.Clock

	health *health.Server
	grpc   *grpc.Server

	mu     sync.Mutex
	checks map[string]Check

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewServer(interval time.Duration) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Server{
		Interval: interval,
		Clock:    timeutil.RealClock{},
		health:   health.NewServer(),
		grpc:     grpc.NewServer(),
		checks:   make(map[string]Check),
		stopCh:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// AddCheck registers a named check. Its service reports NOT_SERVING until
// the first run.
func (s *Server) AddCheck(service string, c Check) {
	s.mu.Lock()
	s.checks[service] = c
	s.mu.Unlock()
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// RunChecks runs every check once and updates the published statuses.
func (s *Server) RunChecks(ctx context.Context) map[string]error {
	s.mu.Lock()
	checks := make(map[string]Check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.Unlock()

	results := make(map[string]error, len(checks))
	overall := healthpb.HealthCheckResponse_SERVING
	for name, c := range checks {
		err := c(ctx)
		results[name] = err
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			logf("%s not serving: %v", name, err)
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
	return results
}

// Serve runs the checks and serves gRPC on lis until Stop.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("health server already running")
	}
	s.RunChecks(ctx)

	ticker := s.Clock.NewTicker(s.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				s.RunChecks(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	logf("grpc health listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on addr and serves until Stop.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.health.Shutdown()
		s.grpc.GracefulStop()
		s.wg.Wait()
	})
}
