package main

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
	"github.com/nerrad567/gray-logic-actuator/internal/dispatch"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-actuator/internal/liveness"
	"github.com/nerrad567/gray-logic-actuator/internal/registration"
)

// mqttQueueSize bounds state messages waiting for the broker.
const mqttQueueSize = 32

// historyObserver appends every applied state to the state history.
type historyObserver struct {
	repo device.StateHistoryRepository
	log  *logging.Logger
}

func (o *historyObserver) OnStateChange(ctx context.Context, change device.StateChange) {
	if err := o.repo.RecordStateChange(ctx, change); err != nil {
		o.log.Warn("recording state history failed", "state", change.State, "error", err)
	}
}

// telemetryWriter is the subset of *influxdb.Telemetry used by observers.
type telemetryWriter interface {
	RecordState(state, source string, at time.Time)
	RecordRegistration(outcome string, success bool, at time.Time)
}

// influxObserver writes an actuator_state point per applied state.
type influxObserver struct {
	telemetry telemetryWriter
}

func (o *influxObserver) OnStateChange(_ context.Context, change device.StateChange) {
	o.telemetry.RecordState(string(change.State), change.Source, change.At)
}

// statePublisher is the subset of the MQTT client used for state output.
type statePublisher interface {
	Topics() mqtt.Topics
	PublishRetained(topic string, payload []byte) error
	PublishStatus(status, reason string) error
}

// mqttObserver publishes retained state messages.
//
// Observers run while the dispatcher holds the pulse lock, so publishing is
// handed to a single worker goroutine that keeps messages in order.
type mqttObserver struct {
	client statePublisher
	log    *logging.Logger

	mu     sync.Mutex
	closed bool
	queue  chan device.StateChange
	done   chan struct{}
}

func newMQTTObserver(client statePublisher, log *logging.Logger) *mqttObserver {
	o := &mqttObserver{
		client: client,
		log:    log,
		queue:  make(chan device.StateChange, mqttQueueSize),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *mqttObserver) OnStateChange(_ context.Context, change device.StateChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	select {
	case o.queue <- change:
	default:
		o.log.Warn("MQTT state queue full, dropping state message", "state", change.State)
	}
}

func (o *mqttObserver) run() {
	defer close(o.done)

	topics := o.client.Topics()
	for change := range o.queue {
		payload, err := mqtt.NewStateMessage(topics.DeviceID(), string(change.State), change.Source, change.At)
		if err != nil {
			o.log.Error("encoding MQTT state message failed", "error", err)
			continue
		}
		if err := o.client.PublishRetained(topics.State(), payload); err != nil {
			o.log.Warn("publishing MQTT state failed", "state", change.State, "error", err)
		}
	}
}

// stop drains queued messages and stops the worker. Later state changes
// are ignored.
func (o *mqttObserver) stop() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	<-o.done
}

// commandSubscriber is the subset of the MQTT client used for commands.
type commandSubscriber interface {
	Topics() mqtt.Topics
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// commandHandler is satisfied by *dispatch.Dispatcher.
type commandHandler interface {
	Handle(ctx context.Context, req dispatch.Request) []byte
}

// mqttCommandBinding feeds the command topic into the dispatcher.
// An empty payload reads the state; anything else is a POST. The dispatcher
// reply is published on the reply topic.
type mqttCommandBinding struct {
	client     commandSubscriber
	dispatcher commandHandler
	qos        byte
	log        *logging.Logger
}

func (b *mqttCommandBinding) subscribe() error {
	return b.client.Subscribe(b.client.Topics().Command(), b.qos, b.handle)
}

func (b *mqttCommandBinding) handle(_ string, payload []byte) error {
	req := dispatch.Request{Method: dispatch.MethodPost, Payload: payload, Source: device.SourceMQTT}
	if len(payload) == 0 {
		req.Method = dispatch.MethodGet
	}

	reply := b.dispatcher.Handle(context.Background(), req)
	return b.client.Publish(b.client.Topics().Reply(), reply, b.qos, false)
}

// outcomeRecorder reports liveness re-registration outcomes to the attempt
// log and, when configured, to InfluxDB and MQTT.
type outcomeRecorder struct {
	attempts attemptRecorder
	influx   telemetryWriter
	mqtt     statePublisher
	log      *logging.Logger
}

func (r *outcomeRecorder) handle(ctx context.Context, o liveness.Outcome) {
	attempt := registration.NewAttempt(o.Response, o.Err)
	attempt.AttemptedAt = o.At.UTC()
	if err := r.attempts.Record(ctx, attempt); err != nil {
		r.log.Warn("recording registration attempt failed", "error", err)
	}

	if r.influx != nil {
		r.influx.RecordRegistration(attempt.Outcome, o.Err == nil, o.At)
	}

	if r.mqtt != nil && o.Err == nil {
		if err := r.mqtt.PublishStatus(mqtt.StatusOnline, "reregistered"); err != nil {
			r.log.Warn("publishing MQTT status failed", "error", err)
		}
	}
}
