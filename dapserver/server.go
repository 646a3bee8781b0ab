// Copyright © 2018 The ELPS authors

// Package dapserver implements a DAP (Debug Adapter Protocol) server over
// suspended program state. Each stop reported by a Debuggee is tracked by a
// suspended.Manager; the variables references handed to the client are the
// manager's references and become invalid when the program resumes.
//
// The server supports two transport modes:
//   - TCP: the server listens on a TCP port and serves one client at a time.
//   - Stdio: the server reads from stdin and writes to stdout, as expected
//     by editors launching a debug adapter as a child process.
package dapserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/framevars/suspended"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/luthersystems/framevars/dapserver"

// Debuggee is the program being inspected. Next resumes it and blocks until
// it stops again. It returns io.EOF once the program has finished.
type Debuggee interface {
	Next(ctx context.Context) (*suspended.Stop, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSourceRoot resolves relative source paths against root so clients can
// open the files.
func WithSourceRoot(root string) Option {
	return func(s *Server) {
		s.sourceRoot = root
	}
}

// WithTracerProvider sets the provider of per request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// Server is a DAP protocol server for one debuggee.
type Server struct {
	manager    *suspended.Manager
	debuggee   Debuggee
	logger     logrus.FieldLogger
	tracer     trace.Tracer
	sourceRoot string

	mu     sync.Mutex
	seq    int
	writer io.Writer

	// done is closed when the server should stop processing messages.
	done chan struct{}
}

// New creates a DAP server inspecting d through m.
func New(m *suspended.Manager, d Debuggee, opts ...Option) *Server {
	s := &Server{
		manager:  m,
		debuggee: d,
		logger:   logrus.StandardLogger(),
		tracer:   otel.Tracer(tracerName),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeConn serves DAP messages on a single connection. It blocks until
// the connection is closed or a disconnect request is received.
func (s *Server) ServeConn(conn io.ReadWriteCloser) error {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	return s.serve(conn, conn)
}

// ServeTCP listens on the given address and serves a single DAP client.
// It blocks until the client disconnects.
func (s *Server) ServeTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close() //nolint:errcheck // best-effort cleanup
	s.logger.WithField("addr", ln.Addr().String()).Info("dap: listening")
	return s.ServeListener(ln)
}

// ServeListener accepts a single connection from the listener and serves
// DAP messages on it.
func (s *Server) ServeListener(ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	s.logger.WithField("remote", conn.RemoteAddr().String()).Info("dap: client connected")
	return s.ServeConn(conn)
}

// ServeStdio serves DAP messages on the given reader and writer,
// typically os.Stdin and os.Stdout.
func (s *Server) ServeStdio(r io.Reader, w io.Writer) error {
	return s.serve(r, w)
}

func (s *Server) serve(r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()
	reader := bufio.NewReader(r)

	h := newHandler(s)
	defer h.release()

	for {
		select {
		case <-s.done:
			return nil
		default:
		}

		msg, err := dap.ReadProtocolMessage(reader)
		var ferr *dap.DecodeProtocolMessageFieldError
		if errors.As(err, &ferr) {
			// A well formed message this server does not know about.
			h.sendError(&dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: ferr.Seq, Type: "request"},
				Command:         ferr.FieldValue,
			}, ferr.Error())
			continue
		}
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}

		h.handle(msg)
	}
}

// send writes a DAP protocol message to the client.
func (s *Server) send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dap.WriteProtocolMessage(s.writer, msg)
}

// nextSeq returns the next sequence number for outgoing messages.
func (s *Server) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// close signals the server to stop processing messages.
func (s *Server) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
