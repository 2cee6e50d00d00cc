package proxy

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

const nameOwnerChangedSignal = "org.freedesktop.DBus.NameOwnerChanged"
const ifacesAddedSignal = ifaceObjectManager + "." + memberInterfacesAdded
const ifacesRemovedSignal = ifaceObjectManager + "." + memberInterfacesRemoved

// SetupSignalForwarding realizes C6's three subscriptions: a catch-all on
// every signal the source bus name emits, plus dedicated subscriptions for
// InterfacesAdded and InterfacesRemoved, mirroring setup_signal_forwarding.
// The two ObjectManager signals get their own subscription because their
// handlers do table bookkeeping in addition to forwarding; the catch-all
// handler explicitly skips InterfacesAdded/Removed so neither is forwarded
// twice.
func (p *Proxy) SetupSignalForwarding() error {
	p.source.Signal(p.sigCh)

	if err := p.source.AddMatchSignal(dbus.WithMatchSender(p.Config.SourceBusName)); err != nil {
		return err
	}
	if err := p.source.AddMatchSignal(
		dbus.WithMatchInterface(ifaceObjectManager),
		dbus.WithMatchMember(memberInterfacesAdded),
	); err != nil {
		return err
	}
	if err := p.source.AddMatchSignal(
		dbus.WithMatchInterface(ifaceObjectManager),
		dbus.WithMatchMember(memberInterfacesRemoved),
	); err != nil {
		return err
	}
	return nil
}

// dispatchSignal is the single point every signal received on the source
// bus passes through, run on the dedicated event-loop goroutine (loop.go).
func (p *Proxy) dispatchSignal(sig *dbus.Signal) {
	switch sig.Name {
	case nameOwnerChangedSignal:
		p.handleNameOwnerChanged(sig)
	case ifacesAddedSignal:
		p.forwardSignal(sig)
		p.onInterfacesAdded(sig)
	case ifacesRemovedSignal:
		p.forwardSignal(sig)
		p.onInterfacesRemoved(sig)
	default:
		p.catchAllForward(sig)
	}
}

// catchAllForward implements on_signal_received_catchall's forwarding
// filter: a signal is relayed only if its path is already proxied, is a
// descendant of the configured source object path (a not-yet-mirrored object
// under the proxied root can still emit signals worth forwarding), or is the
// D-Bus daemon's own path.
func (p *Proxy) catchAllForward(sig *dbus.Signal) {
	if !p.pathIsRelevant(sig.Path) {
		return
	}
	p.forwardSignal(sig)
}

func (p *Proxy) pathIsRelevant(path dbus.ObjectPath) bool {
	if path == pathDBusDaemon {
		return true
	}

	p.mu.RLock()
	_, proxied := p.objects[path]
	p.mu.RUnlock()
	if proxied {
		return true
	}

	return strings.HasPrefix(string(path), string(p.Config.SourceObjectPath))
}

func (p *Proxy) forwardSignal(sig *dbus.Signal) {
	if err := p.target.Emit(sig.Path, sig.Name, sig.Body...); err != nil {
		p.Msg.Errorf("signal forward: %s %s: %v", sig.Path, sig.Name, err)
		return
	}
	p.stats.SignalsForwarded.Add(1)
}

// handleNameOwnerChanged routes a NameOwnerChanged signal to either the
// source-vanished path or the agent-owner-vanished path, ignoring the two
// cases the original also ignores: an empty old owner (a brand new name
// appearing, nothing was registered under it yet) and a non-empty new owner
// (a rename), which is logged since the proxy does not support moving a
// live registration onto a new unique name — see DESIGN.md's Open Question
// decision.
func (p *Proxy) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	if oldOwner == "" {
		return
	}
	if newOwner != "" {
		p.Msg.Verbosef("%v: owner rename %s -> %s ignored (unsupported)", ErrUnsupportedRename, oldOwner, newOwner)
		return
	}

	if name == p.Config.SourceBusName {
		p.Msg.Errorf("%v: %s", ErrSourceVanished, name)
		p.triggerShutdown()
		return
	}

	p.onAgentOwnerVanished(oldOwner)
}
