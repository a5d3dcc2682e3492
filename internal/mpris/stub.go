//go:build !linux

package mpris

import "context"

// Server is a no-op on non-Linux platforms.
type Server struct{}

// New returns a no-op service on non-Linux platforms.
func New(_ Options) *Server {
	return &Server{}
}

// Start is a no-op on non-Linux platforms.
func (s *Server) Start(_ context.Context) error { return nil }

// Stop is a no-op on non-Linux platforms.
func (s *Server) Stop() {}

// Running always reports false on non-Linux platforms.
func (s *Server) Running() bool { return false }
