package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
)

// Measurement names.
const (
	MeasurementState        = "actuator_state"
	MeasurementLiveness     = "actuator_liveness"
	MeasurementRegistration = "actuator_registration"
)

const (
	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Telemetry writes one actuator's points to a bucket.
// Writes are batched and never block the caller; all methods are safe for
// concurrent use.
type Telemetry struct {
	client   influxdb2.Client
	points   api.WriteAPI
	deviceID string
	closed   atomic.Bool
}

// Open connects to InfluxDB and returns telemetry tagged with deviceID.
// onError, if non-nil, receives asynchronous batch write failures.
//
// Returns ErrDisabled when cfg.Enabled is false and ErrConnectionFailed
// when the server does not answer a ping.
func Open(cfg config.InfluxDBConfig, deviceID int64, onError func(error)) (*Telemetry, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- both values are positive
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if ok, err := client.Ping(ctx); err != nil || !ok {
		client.Close()
		if err == nil {
			err = fmt.Errorf("server not ready")
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	t := &Telemetry{
		client:   client,
		points:   client.WriteAPI(cfg.Org, cfg.Bucket),
		deviceID: strconv.FormatInt(deviceID, 10),
	}

	// The error channel is closed by client.Close.
	if onError != nil {
		go func(errs <-chan error) {
			for err := range errs {
				onError(err)
			}
		}(t.points.Errors())
	}
	return t, nil
}

// RecordState queues an actuator_state point.
func (t *Telemetry) RecordState(state, source string, at time.Time) {
	t.write(statePoint(t.deviceID, state, source, at))
}

// RecordLiveness queues an actuator_liveness point for the counter after a
// tick.
func (t *Telemetry) RecordLiveness(counter int64, at time.Time) {
	t.write(livenessPoint(t.deviceID, counter, at))
}

// RecordRegistration queues an actuator_registration point.
func (t *Telemetry) RecordRegistration(outcome string, success bool, at time.Time) {
	t.write(registrationPoint(t.deviceID, outcome, success, at))
}

// HealthCheck pings the server.
func (t *Telemetry) HealthCheck(ctx context.Context) error {
	if t.closed.Load() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := t.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb ping: server not ready")
	}
	return nil
}

// Close flushes queued points and releases the client. Points recorded
// afterwards are dropped.
func (t *Telemetry) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.points.Flush()
	t.client.Close()
	return nil
}

func (t *Telemetry) write(p *write.Point) {
	if t.closed.Load() {
		return
	}
	t.points.WritePoint(p)
}

func statePoint(deviceID, state, source string, at time.Time) *write.Point {
	var on, pulse int
	switch state {
	case "ON":
		on = 1
	case "ON-PULSE":
		on, pulse = 1, 1
	}

	return influxdb2.NewPoint(MeasurementState,
		map[string]string{"device_id": deviceID, "state": state, "source": source},
		map[string]any{"on": on, "pulse": pulse},
		at)
}

func livenessPoint(deviceID string, counter int64, at time.Time) *write.Point {
	return influxdb2.NewPoint(MeasurementLiveness,
		map[string]string{"device_id": deviceID},
		map[string]any{"counter": counter},
		at)
}

func registrationPoint(deviceID, outcome string, success bool, at time.Time) *write.Point {
	return influxdb2.NewPoint(MeasurementRegistration,
		map[string]string{"device_id": deviceID, "outcome": outcome},
		map[string]any{"success": success},
		at)
}
