package proxy

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// BusType selects which well-known bus a connection is made to.
type BusType int

const (
	// BusTypeSystem is the system bus. It is the default for the source
	// and what ParseBusType returns for any unrecognised value; the
	// --target-bus-type flag defaults to the session bus.
	BusTypeSystem BusType = iota
	BusTypeSession
)

// ParseBusType maps a --source-bus-type/--target-bus-type flag value to a
// BusType. Any value other than "session" is treated as "system", matching
// the original implementation's parse_bus_type.
func ParseBusType(s string) BusType {
	if s == "session" {
		return BusTypeSession
	}
	return BusTypeSystem
}

func (t BusType) String() string {
	if t == BusTypeSession {
		return "session"
	}
	return "system"
}

func (t BusType) connect() (*dbus.Conn, error) {
	if t == BusTypeSession {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

// Config is the proxy's immutable configuration, fixed for the lifetime of
// a run. It is built once from parsed flags and never mutated afterward;
// every component receives it by value.
type Config struct {
	SourceBusName    string
	SourceObjectPath dbus.ObjectPath
	TargetBusName    string

	SourceBusType BusType
	TargetBusType BusType

	Verbose        bool
	Info           bool
	FatalWarnings  bool
}

var (
	ErrEmptySourceBusName    = errors.New("proxy: source bus name is required")
	ErrEmptySourceObjectPath = errors.New("proxy: source object path is required")
	ErrEmptyTargetBusName    = errors.New("proxy: proxy (target) bus name is required")
	ErrInvalidObjectPath     = errors.New("proxy: source object path is not a valid object path")
)

// Validate checks the three required fields are non-empty and that
// SourceObjectPath is well formed, matching validateProxyConfigOrExit's
// invariants without calling exit itself — main owns the only exit point.
func (c Config) Validate() error {
	if c.SourceBusName == "" {
		return ErrEmptySourceBusName
	}
	if c.SourceObjectPath == "" {
		return ErrEmptySourceObjectPath
	}
	if !c.SourceObjectPath.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidObjectPath, c.SourceObjectPath)
	}
	if c.TargetBusName == "" {
		return ErrEmptyTargetBusName
	}
	return nil
}
