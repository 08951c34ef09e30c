package mdns

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
)

// DNS-SD constants.
const (
	ServiceType = "_coap._udp"
	Domain      = "local."

	// maxInstanceNameLen is the DNS label limit.
	maxInstanceNameLen = 63
)

// Info describes the endpoint being advertised.
type Info struct {
	DeviceID int64
	Port     int
	Pulse    bool
}

// Logger is the logging surface the advertiser needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Advertiser publishes one DNS-SD service. It is safe for concurrent use.
type Advertiser struct {
	cfg    config.MDNSConfig
	logger Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is published until Advertise.
func NewAdvertiser(cfg config.MDNSConfig) *Advertiser {
	return &Advertiser{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for advertisement events.
func (a *Advertiser) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// Advertise publishes info, replacing any earlier advertisement. The id can
// change after a re-registration, so callers may invoke it more than once.
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	name := InstanceName(a.cfg.Instance, info.DeviceID)
	server, err := zeroconf.Register(name, ServiceType, Domain, info.Port, TXTRecords(info), a.interfaces())
	if err != nil {
		return fmt.Errorf("registering mDNS service %q: %w", name, err)
	}

	a.server = server
	a.logger.Info("mDNS service advertised", "instance", name, "service", ServiceType, "port", info.Port)
	return nil
}

// Stop withdraws the advertisement. Safe to call when nothing is published.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("mDNS service withdrawn")
	}
}

// interfaces returns the configured interface, or nil for all of them.
func (a *Advertiser) interfaces() []net.Interface {
	if a.cfg.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		a.logger.Warn("mDNS interface not found, advertising on all", "interface", a.cfg.Interface, "error", err)
		return nil
	}
	return []net.Interface{*iface}
}

// InstanceName builds "<prefix>-<id>", truncated to a single DNS label.
func InstanceName(prefix string, deviceID int64) string {
	if prefix == "" {
		prefix = "graylogic-actuator"
	}
	name := prefix + "-" + strconv.FormatInt(deviceID, 10)
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

// TXTRecords encodes info as key=value strings.
func TXTRecords(info Info) []string {
	return []string{
		"id=" + strconv.FormatInt(info.DeviceID, 10),
		"pulse=" + strconv.FormatBool(info.Pulse),
	}
}
