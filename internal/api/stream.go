package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
)

// Stream event names.
const (
	// EventStateSnapshot is the first frame on every connection: the state
	// persisted when the client connected.
	EventStateSnapshot = "actuator.state_snapshot"

	// EventStateChanged follows every applied state write.
	EventStateChanged = "actuator.state_changed"

	streamBufferSize = 16
)

// StateEvent is one frame of the state stream.
type StateEvent struct {
	Event     string       `json:"event"`
	DeviceID  int64        `json:"device_id"`
	State     device.State `json:"state"`
	Source    string       `json:"source,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Read-only stream on a local interface
		return true
	},
}

// StateStream pushes applied state changes to WebSocket subscribers.
// The stream is one-way: frames sent by clients are discarded.
type StateStream struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	deviceID int64

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

// NewStateStream creates a stream stamping deviceID on every event.
func NewStateStream(cfg config.WebSocketConfig, deviceID int64, logger *logging.Logger) *StateStream {
	return &StateStream{
		cfg:      cfg,
		logger:   logger,
		deviceID: deviceID,
		subs:     make(map[*subscriber]struct{}),
	}
}

// OnStateChange publishes an applied write. *StateStream is a dispatcher
// observer.
func (s *StateStream) OnStateChange(_ context.Context, change device.StateChange) {
	s.publish(StateEvent{
		Event:     EventStateChanged,
		DeviceID:  s.deviceID,
		State:     change.State,
		Source:    change.Source,
		Timestamp: change.At,
	})
}

// Subscribers returns the number of connected clients.
func (s *StateStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close disconnects every subscriber. Later connections are refused.
func (s *StateStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.out)
	}
}

// publish queues ev for every subscriber. A subscriber whose buffer is full
// misses the frame. Sends and closes both happen under s.mu.
func (s *StateStream) publish(ev StateEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding state event failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		select {
		case sub.out <- data:
		default:
			s.logger.Warn("state stream subscriber too slow, frame dropped", "event", ev.Event)
		}
	}
}

// add registers a subscriber with snapshot already queued.
func (s *StateStream) add(sub *subscriber, snapshot []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if snapshot != nil {
		sub.out <- snapshot
	}
	s.subs[sub] = struct{}{}
	return true
}

func (s *StateStream) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.out)
	}
}

// handleWebSocket upgrades the connection and attaches it to the stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var snapshot []byte
	if st, readErr := s.store.Read(r.Context()); readErr == nil {
		snapshot, _ = json.Marshal(StateEvent{
			Event:     EventStateSnapshot,
			DeviceID:  s.deviceID,
			State:     st,
			Timestamp: time.Now().UTC(),
		})
	}

	sub := &subscriber{conn: conn, out: make(chan []byte, streamBufferSize)}
	if !s.stream.add(sub, snapshot) {
		conn.Close() //nolint:errcheck // Stream already closed
		return
	}
	s.logger.Debug("state stream client connected", "clients", s.stream.Subscribers())

	go s.stream.writeLoop(sub)
	go s.stream.readLoop(sub)
}

// readLoop keeps the read deadline fresh via pongs and detects disconnects.
func (s *StateStream) readLoop(sub *subscriber) {
	defer s.remove(sub)

	pongWait := time.Duration(s.cfg.PingInterval+s.cfg.PongTimeout) * time.Second
	sub.conn.SetReadLimit(int64(s.cfg.MaxMessageSize))
	sub.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // Checked by the next read
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.NextReader(); err != nil {
			s.logger.Debug("state stream client disconnected", "error", err)
			return
		}
	}
}

// writeLoop drains the subscriber's queue and pings on an interval. It owns
// the connection and closes it when the queue is closed or a write fails.
func (s *StateStream) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(time.Duration(s.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		sub.conn.Close() //nolint:errcheck // Best effort
	}()

	writeWait := time.Duration(s.cfg.PongTimeout) * time.Second
	for {
		select {
		case data, ok := <-sub.out:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Checked by the write
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck // Best effort
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Checked by the write
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
