package coap

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpServer "github.com/plgd-dev/go-coap/v3/udp/server"

	"github.com/nerrad567/gray-logic-actuator/internal/dispatch"
)

// Handler answers one command. *dispatch.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, req dispatch.Request) []byte
}

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server is the actuator's CoAP command endpoint.
type Server struct {
	addr    string
	handler Handler
	logger  Logger

	mu       sync.Mutex
	listener *coapNet.UDPConn
	server   *udpServer.Server
	done     chan struct{}
}

// NewServer creates a server that will listen on addr (host:port).
func NewServer(addr string, handler Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Start binds the UDP socket and serves in the background.
// ctx bounds the lifetime of the serve loop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrServerRunning
	}

	l, err := coapNet.NewListenUDP("udp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	router := mux.NewRouter()
	router.DefaultHandle(mux.HandlerFunc(s.serveCoAP))

	srv := udp.NewServer(
		options.WithMux(router),
		options.WithContext(ctx),
	)

	s.listener = l
	s.server = srv
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := srv.Serve(l); err != nil {
			s.logger.Error("coap server stopped", "error", err)
		}
	}(s.done)

	s.logger.Info("coap server listening", "address", l.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.LocalAddr()
}

// Close stops the server and waits for the serve loop to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, l, done := s.server, s.listener, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	srv.Stop()
	<-done

	// Stop normally closes the listener already.
	_ = l.Close() //nolint:errcheck // Double close is harmless
	return nil
}

// serveCoAP converts a CoAP request into a dispatch.Request.
func (s *Server) serveCoAP(w mux.ResponseWriter, r *mux.Message) {
	var payload []byte
	if r.Body() != nil {
		body, err := r.ReadBody()
		if err != nil {
			s.logger.Warn("reading coap request body failed", "error", err)
		}
		payload = body
	}

	reply := s.handler.Handle(r.Context(), dispatch.Request{
		Method:  methodName(r.Code()),
		Payload: payload,
	})

	if err := w.SetResponse(codes.Content, message.TextPlain, bytes.NewReader(reply)); err != nil {
		s.logger.Error("writing coap response failed", "error", err)
	}
}

// methodName maps a CoAP request code to the dispatcher's method names.
func methodName(c codes.Code) string {
	switch c {
	case codes.GET:
		return dispatch.MethodGet
	case codes.POST:
		return dispatch.MethodPost
	case codes.PUT:
		return "PUT"
	case codes.DELETE:
		return "DELETE"
	default:
		return c.String()
	}
}
