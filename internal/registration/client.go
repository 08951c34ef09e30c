package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ContentTypeJSON is the content format of registration requests.
const ContentTypeJSON = "application/json"

// Transport delivers a confirmable POST and returns the reply payload.
type Transport interface {
	Post(ctx context.Context, addr, path, contentType string, body []byte) ([]byte, error)
}

// Logger defines the logging interface used by the client.
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

// Client registers the actuator with a coordinator.
type Client struct {
	transport Transport
	endpoint  Endpoint
	timeout   time.Duration
	logger    Logger
}

// NewClient creates a registration client. A non-positive timeout leaves
// the caller's context as the only bound.
func NewClient(transport Transport, endpoint Endpoint, timeout time.Duration) *Client {
	return &Client{
		transport: transport,
		endpoint:  endpoint,
		timeout:   timeout,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Register sends req and decodes the acknowledgment.
//
// Returns:
//   - Response: assigned id and initial state
//   - error: wraps ErrRejected, ErrUnreachable or ErrMalformedResponse
func (c *Client) Register(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding registration request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("registering with coordinator",
		"endpoint", c.endpoint.String(),
		"ip_address", req.IPAddress,
		"port", req.Port,
		"pulse", req.Pulse,
	)

	reply, err := c.transport.Post(ctx, c.endpoint.Addr, c.endpoint.Path, ContentTypeJSON, body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if string(bytes.TrimSpace(reply)) == rejectedPayload {
		return Response{}, ErrRejected
	}

	resp, err := parseResponse(reply)
	if err != nil {
		return Response{}, err
	}

	c.logger.Info("registered with coordinator", "id", resp.ID, "state", resp.State)
	return resp, nil
}
