package proxy

import (
	"github.com/godbus/dbus/v5"
)

// managedObjects is the decoded reply shape of GetManagedObjects:
// object path -> interface name -> property name -> value.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// proxyObjectManagerObjects realizes the ObjectManager short-circuit half of
// C5: a single GetManagedObjects call replaces recursive Introspect calls
// for every path it reports. Each reported path is still introspected
// individually afterward, because GetManagedObjects only carries property
// values, not the method argument signatures the method forwarder's
// generic handler needs to build — GVariant's dynamic typing lets the
// original skip this, Go's static reflect.MakeFunc signature does not.
func (p *Proxy) proxyObjectManagerObjects(managerPath dbus.ObjectPath) error {
	var objs managedObjects
	call := p.sourceObject(managerPath).Call(ifaceObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return call.Err
	}
	if err := call.Store(&objs); err != nil {
		return err
	}

	for path := range objs {
		node, err := p.introspectPath(path)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			p.Msg.Errorf("objectmanager: introspect %s: %v", path, err)
			continue
		}
		if !nonStandardInterfaces(node) {
			continue
		}
		if err := p.mirror(path, node); err != nil {
			p.Msg.Errorf("objectmanager: mirror %s: %v", path, err)
		}
	}
	return nil
}

// onInterfacesAdded handles a forwarded InterfacesAdded signal by mirroring
// the newly reported object, the Go realization of on_interfaces_added /
// update_object_with_new_interfaces. Forwarding of the signal itself
// happens in dispatchSignal before this is called.
func (p *Proxy) onInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}

	node, err := p.introspectPath(path)
	if err != nil {
		if err != ErrNotFound {
			p.Msg.Errorf("interfaces-added: introspect %s: %v", path, err)
		}
		return
	}
	if !nonStandardInterfaces(node) {
		return
	}
	if err := p.mirror(path, node); err != nil {
		p.Msg.Errorf("interfaces-added: mirror %s: %v", path, err)
	}
}

// onInterfacesRemoved drops the named interfaces from the proxied object at
// path, unexporting the object entirely once nothing non-standard remains.
// The signal forwarder calls this only after the InterfacesRemoved signal
// has already been forwarded, matching on_interfaces_removed's
// forward-before-teardown ordering.
func (p *Proxy) onInterfacesRemoved(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	removed, ok := sig.Body[1].([]string)
	if !ok {
		return
	}

	p.dropInterfaces(path, removed)
}
