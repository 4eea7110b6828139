// Package vmsock implements the Control Socket Server: a jrpc2-over-unix-
// socket bridge inside the VM Directory that maps a small command set onto
// the Lifecycle Controller's stop/suspend event model. It is single-client
// at a time by construction — concurrent connections are accepted by the
// listener and http.Server, but the bridge's jrpc2 server runs with
// Concurrency 1, so requests are handled one at a time without extra
// locking here.
package vmsock

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/sirupsen/logrus"

	"github.com/orbstack/runvm/types"
)

// Server is the Control Socket Server bound to one VM Directory's socket
// path. Unlike the teacher's VmControlServer, it exposes only the three
// commands the spec names: failures here are logged, never fatal to the VM.
type Server struct {
	stopFn        func(reason types.StopReason)
	requestStopFn func()
	suspendFn     func() error
}

// New builds a Server around plain callback functions rather than the full
// Controller interface, since Suspend needs the current config and the
// Lifecycle Controller is in the best position to supply it.
func New(stop func(types.StopReason), requestStop func(), suspend func() error) *Server {
	return &Server{stopFn: stop, requestStopFn: requestStop, suspendFn: suspend}
}

func (s *Server) Stop(ctx context.Context) error {
	s.stopFn(types.StopReasonControlSocket)
	return nil
}

// RequestStop maps the "request-stop" command onto the same guest-side
// ACPI-like event as SIGUSR2 -- it never forces the VM down itself.
func (s *Server) RequestStop(ctx context.Context) error {
	s.requestStopFn()
	return nil
}

func (s *Server) Suspend(ctx context.Context) error {
	return s.suspendFn()
}

// Serve listens on sockPath and returns a close function. Listener errors
// are logged, not propagated to the VM task — per the spec, socket failures
// never tear down the VM.
func (s *Server) Serve(sockPath string) (func() error, error) {
	bridge := jhttp.NewBridge(handler.Map{
		"stop":         handler.New(s.Stop),
		"request-stop": handler.New(s.RequestStop),
		"suspend":      handler.New(s.Suspend),
	}, &jhttp.BridgeOptions{
		Server: &jrpc2.ServerOptions{
			Concurrency: 1,
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/", bridge)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen control socket: %w", err)
	}

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Warn("control socket server exited")
		}
	}()

	return func() error {
		return listener.Close()
	}, nil
}
