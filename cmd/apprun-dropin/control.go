// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/apprun-project/dropin/lib/codec"
	"github.com/apprun-project/dropin/lib/dropin"
)

// connTimeout bounds how long a control client may take per request.
// The socket is a local diagnostic surface; a stuck client must not
// pin a goroutine forever.
const connTimeout = 5 * time.Second

// controlRequest is the JSON request read from a control connection.
// JSON on the request side keeps the socket scriptable from a shell
// (echo + socat); responses are CBOR for a stable, typed surface.
type controlRequest struct {
	Action string `json:"action"`
}

// statusResponse is the CBOR reply to a status request.
type statusResponse struct {
	Backend          string    `cbor:"backend"`
	PassesCompleted  uint64    `cbor:"passes_completed"`
	BundlesTracked   int       `cbor:"bundles_tracked"`
	DescriptorsOwned int       `cbor:"descriptors_owned"`
	LastPassAt       time.Time `cbor:"last_pass_at"`
}

// errorResponse is the CBOR reply to an unrecognized request.
type errorResponse struct {
	Error string `cbor:"error"`
}

// controlServer answers status queries on a unix socket while the
// schedulers run passes. It only reads the engine's stats snapshot,
// never its registry, so it is safe alongside an in-flight pass.
type controlServer struct {
	engine  *dropin.Engine
	backend string
	logger  *slog.Logger
}

// listenControl binds the control socket, replacing a stale socket
// file left behind by an unclean shutdown.
func listenControl(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return listener, nil
}

// serve accepts control connections until the context is cancelled.
func (s *controlServer) serve(ctx context.Context, listener net.Listener) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("control socket accept failed", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

// handle serves one request per connection: JSON request in, CBOR
// response out, then close.
func (s *controlServer) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	var request controlRequest
	if err := json.NewDecoder(conn).Decode(&request); err != nil {
		s.logger.Warn("malformed control request", "error", err)
		return
	}

	var response any
	switch request.Action {
	case "status":
		stats := s.engine.Stats()
		response = statusResponse{
			Backend:          s.backend,
			PassesCompleted:  stats.PassesCompleted,
			BundlesTracked:   stats.BundlesTracked,
			DescriptorsOwned: stats.DescriptorsOwned,
			LastPassAt:       stats.LastPassAt,
		}
	default:
		response = errorResponse{Error: fmt.Sprintf("unknown action %q", request.Action)}
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Warn("writing control response", "error", err)
	}
}
