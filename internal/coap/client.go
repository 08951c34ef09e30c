package coap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
)

// Client sends confirmable CoAP POSTs.
// It satisfies registration.Transport.
type Client struct{}

// NewClient creates a CoAP client.
func NewClient() *Client {
	return &Client{}
}

// Post dials addr, sends body to path and returns the reply payload.
// ctx bounds the whole exchange, retransmissions included.
//
// Returns:
//   - []byte: reply payload (may be empty)
//   - error: dial, exchange or ErrErrorResponse for 4.xx/5.xx codes
func (c *Client) Post(ctx context.Context, addr, path, contentType string, body []byte) ([]byte, error) {
	conn, err := udp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close() //nolint:errcheck // Best effort

	resp, err := conn.Post(ctx, path, mediaType(contentType), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("posting to %s%s: %w", addr, path, err)
	}

	if isErrorCode(resp.Code()) {
		return nil, fmt.Errorf("%w: %v", ErrErrorResponse, resp.Code())
	}

	if resp.Body() == nil {
		return nil, nil
	}
	payload, err := resp.ReadBody()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return payload, nil
}

func mediaType(contentType string) message.MediaType {
	switch contentType {
	case "application/json":
		return message.AppJSON
	case "application/cbor":
		return message.AppCBOR
	default:
		return message.TextPlain
	}
}

// isErrorCode reports whether c is a client (4.xx) or server (5.xx) error.
func isErrorCode(c codes.Code) bool {
	class := uint8(c) >> 5
	return class == 4 || class == 5
}
