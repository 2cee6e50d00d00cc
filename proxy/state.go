package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/tiiuae/ghaf-dbus-proxy/agent"
	"github.com/tiiuae/ghaf-dbus-proxy/message"
)

const (
	ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"
	ifacePeer           = "org.freedesktop.DBus.Peer"
	ifaceProperties     = "org.freedesktop.DBus.Properties"
	ifaceObjectManager  = "org.freedesktop.DBus.ObjectManager"

	memberInterfacesAdded   = "InterfacesAdded"
	memberInterfacesRemoved = "InterfacesRemoved"

	pathDBusDaemon = dbus.ObjectPath("/org/freedesktop/DBus")
	nameDBusDaemon = "org.freedesktop.DBus"
)

// standardInterfaces are answered locally and never mirrored, matching the
// original's skip list in proxy_single_object: every ProxiedObject carries
// at least these, so an object is only worth registering when it exposes
// something beyond them.
var standardInterfaces = map[string]bool{
	ifaceIntrospectable: true,
	ifacePeer:           true,
	ifaceProperties:     true,
}

// Every exported method table entry is one of three kinds: a plain mirror
// forward to a fixed path on the source bus (buildMethodTable's default
// case, methods.go's makeForwardHandler); an agent-interception forward of
// a manager's Register*/Unregister method that records or removes the
// registration before forwarding to the manager on the source bus
// (buildMethodTable's rule-matched case, agents.go's
// makeAgentInterceptHandler); or an agent callback exported on the source
// bus that resolves its target per call from the agent registry (agents.go's
// makeAgentCallbackHandler). This is the Go shape of the single vtable the
// original gives every registration: rather than a literal tagged-union
// struct, each kind is realized as a reflect.MakeFunc closure capturing
// exactly the context that kind of forward needs, since the kinds never
// need to be compared or stored — only invoked.

// cacheKey identifies one interface of one object for interfaceCache,
// avoiding the formatted-string keys the original builds with snprintf.
type cacheKey struct {
	path  dbus.ObjectPath
	iface string
}

// object is the Go realization of ProxiedObject: one entry per object path
// mirrored onto the target bus.
type object struct {
	path dbus.ObjectPath
	node *introspect.Node

	// registrations maps "interface" to the export handle's identity so it
	// can be unexported later; godbus identifies exports by (path, interface)
	// directly, so the value only needs to record that the interface is live.
	registrations map[string]bool
}

// Stats are the supplemented forwarding counters, surfaced only through a
// periodic debug log line gated by --verbose.
type Stats struct {
	ObjectsMirrored  atomic.Int64
	SignalsForwarded atomic.Int64
	CallsForwarded   atomic.Int64
	ActiveAgents     atomic.Int64
}

// Proxy is the Go realization of ProxyState: both bus connections, every
// table the core needs, and the lock that guards them. It is constructed
// once in main and passed around explicitly; there is no package-level
// instance.
type Proxy struct {
	Config Config
	Msg    message.Msg

	source *dbus.Conn
	target *dbus.Conn

	mu sync.RWMutex

	objects   map[dbus.ObjectPath]*object
	ifaceCache map[cacheKey]*introspect.Interface

	agents *agent.Registry

	stats Stats

	sourceOwner string // current unique name owning Config.SourceBusName

	sigCh chan *dbus.Signal
	done  chan struct{}

	shutdownOnce sync.Once
}

// New constructs a Proxy with empty tables. Bus connections are established
// separately by Connect (C1), keeping construction free of I/O so it can be
// used from tests without a live bus.
func New(cfg Config, msg message.Msg) *Proxy {
	return &Proxy{
		Config:     cfg,
		Msg:        msg,
		objects:    make(map[dbus.ObjectPath]*object),
		ifaceCache: make(map[cacheKey]*introspect.Interface),
		agents:     agent.NewRegistry(),
		sigCh:      make(chan *dbus.Signal, 32),
		done:       make(chan struct{}),
	}
}

// Stats returns a snapshot-safe pointer to the live counters; callers only
// ever read atomics off it.
func (p *Proxy) Stats() *Stats { return &p.stats }
