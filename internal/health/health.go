// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package health exposes the state of every connection pool through the
// standard gRPC health checking protocol. Each server name is a service;
// the empty service name reports SERVING only while every pool is connected.
package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"oraflow/cli/internal/pool"
)

// Server tracks pool managers and publishes their serving status.
type Server struct {
	hs *health.Server

	mu     sync.Mutex
	states map[string]healthpb.HealthCheckResponse_ServingStatus
	unsubs []func()
}

// NewServer returns a server with no watched pools.
func NewServer() *Server {
	s := &Server{
		hs:     health.NewServer(),
		states: map[string]healthpb.HealthCheckResponse_ServingStatus{},
	}
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Health returns the underlying health service implementation.
func (s *Server) Health() healthpb.HealthServer { return s.hs }

// Watch follows m's status events until Close.
func (s *Server) Watch(m *pool.Manager) {
	name := m.Identity().Name
	s.set(name, statusFor(m.State()))
	unsub := m.Subscribe(func(ev pool.StatusEvent) {
		s.set(name, statusForEvent(ev.Event))
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

func (s *Server) set(name string, st healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = st
	s.hs.SetServingStatus(name, st)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, v := range s.states {
		if v != healthpb.HealthCheckResponse_SERVING {
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.hs.SetServingStatus("", overall)
}

func statusFor(st pool.State) healthpb.HealthCheckResponse_ServingStatus {
	if st == pool.StateConnected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func statusForEvent(ev pool.Event) healthpb.HealthCheckResponse_ServingStatus {
	if ev == pool.EventConnected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Serve listens on addr and serves the health service until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, s.hs)

	errc := make(chan error, 1)
	go func() { errc <- gs.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.hs.Shutdown()
		gs.GracefulStop()
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// Close stops following pool events.
func (s *Server) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Check asks the health service at addr for service's status.
func Check(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(cctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
