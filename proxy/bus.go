package proxy

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Connect realizes C1: it opens both bus connections, acquires the target
// well-known name, and starts watching the source name's ownership. Nothing
// else touches net.Dial-equivalents; every other component is handed the
// two *dbus.Conn values already open.
func (p *Proxy) Connect() error {
	var err error

	p.source, err = p.Config.SourceBusType.connect()
	if err != nil {
		return fmt.Errorf("%w: source bus (%s): %v", ErrConnectFailed, p.Config.SourceBusType, err)
	}

	p.target, err = p.Config.TargetBusType.connect()
	if err != nil {
		p.source.Close()
		return fmt.Errorf("%w: target bus (%s): %v", ErrConnectFailed, p.Config.TargetBusType, err)
	}

	reply, err := p.target.RequestName(p.Config.TargetBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNameOwnFailed, p.Config.TargetBusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s: name already owned", ErrNameOwnFailed, p.Config.TargetBusName)
	}

	if err := p.watchSourceOwner(); err != nil {
		return fmt.Errorf("%w: watch source owner: %v", ErrConnectFailed, err)
	}

	return nil
}

// watchSourceOwner records the source bus name's current owner with one
// GetNameOwner call and subscribes to NameOwnerChanged filtered to the
// source bus name, using the same NameOwnerChanged match-and-dispatch
// mechanism C8 uses to detect agent owners vanishing rather than standing
// up a second one, per SPEC_FULL's C1 note.
func (p *Proxy) watchSourceOwner() error {
	call := p.source.Object(nameDBusDaemon, pathDBusDaemon).Call(
		"org.freedesktop.DBus.GetNameOwner", 0, p.Config.SourceBusName)
	if call.Err == nil && len(call.Body) == 1 {
		if owner, ok := call.Body[0].(string); ok {
			p.sourceOwner = owner
		}
	}

	return p.source.AddMatchSignal(
		dbus.WithMatchInterface(nameDBusDaemon),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, p.Config.SourceBusName),
	)
}

// Close tears both connections down. Shutdown ordering (stop receiving
// signals, unregister agents, unexport mirrors, close connections) lives in loop.go;
// Close is the final step of that sequence.
func (p *Proxy) Close() {
	if p.source != nil {
		p.source.Close()
	}
	if p.target != nil {
		p.target.Close()
	}
}

// sourceObject returns a BusObject on the source bus at path, the
// forwarding direction used by the method forwarder and property proxy.
func (p *Proxy) sourceObject(path dbus.ObjectPath) dbus.BusObject {
	return p.source.Object(p.Config.SourceBusName, path)
}
