package proxy

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	errUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
	errUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// classifyIntrospectErr turns a raw introspection call failure into
// ErrNotFound when the source reports the object or the Introspectable
// method itself is unknown, matching discover_and_proxy_object_tree's
// NotFound handling (silently skip and keep walking) versus any other
// failure (log and keep walking, per fetch_introspection_data).
func classifyIntrospectErr(err error) error {
	if dberr, ok := err.(dbus.Error); ok {
		if dberr.Name == errUnknownObject || dberr.Name == errUnknownMethod {
			return ErrNotFound
		}
	}
	return fmt.Errorf("%w: %v", ErrIntrospectFailed, err)
}

// introspectPath fetches and parses the introspection XML for path on the
// source bus, the Go realization of fetch_introspection_data.
func (p *Proxy) introspectPath(path dbus.ObjectPath) (*introspect.Node, error) {
	obj := p.sourceObject(path)
	node, err := introspect.Call(obj)
	if err != nil {
		return nil, classifyIntrospectErr(err)
	}
	return node, nil
}

// cacheInterfaces populates p.ifaceCache for every non-standard interface
// node declares at path other than ObjectManager, which is skipped, and
// returns the names of the cached interfaces. It is
// the Go analogue of the per-interface bookkeeping proxy_single_object does
// inline, split out since C5 needs to repeat it for objects that appear
// after startup.
func (p *Proxy) cacheInterfaces(path dbus.ObjectPath, node *introspect.Node) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var names []string
	for i := range node.Interfaces {
		iface := &node.Interfaces[i]
		if standardInterfaces[iface.Name] || iface.Name == ifaceObjectManager {
			continue
		}
		p.ifaceCache[cacheKey{path: path, iface: iface.Name}] = iface
		names = append(names, iface.Name)
	}
	return names
}

// lookupInterface returns the cached introspected interface for path/iface,
// the Go analogue of the original's interface_info_cache lookups inside the
// generic method-call handler.
func (p *Proxy) lookupInterface(path dbus.ObjectPath, iface string) (*introspect.Interface, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.ifaceCache[cacheKey{path: path, iface: iface}]
	return i, ok
}

// hasObjectManager reports whether node declares
// org.freedesktop.DBus.ObjectManager, the short-circuit discover_and_proxy_object_tree
// uses to switch from recursive Introspect walking to a single
// GetManagedObjects call.
func hasObjectManager(node *introspect.Node) bool {
	for _, iface := range node.Interfaces {
		if iface.Name == ifaceObjectManager {
			return true
		}
	}
	return false
}

// nonStandardInterfaces reports whether node declares anything beyond the
// three interfaces the bus library answers natively, matching
// proxy_single_object's skip-if-nothing-but-standard-interfaces check.
func nonStandardInterfaces(node *introspect.Node) bool {
	for _, iface := range node.Interfaces {
		if !standardInterfaces[iface.Name] {
			return true
		}
	}
	return false
}

// joinPath concatenates a parent path and a child node name the way
// introspection's child <node name="..."/> entries are meant to be resolved,
// normalizing the double slash that occurs when parent is "/".
func joinPath(parent dbus.ObjectPath, child string) dbus.ObjectPath {
	if parent == "/" {
		return dbus.ObjectPath("/" + child)
	}
	return dbus.ObjectPath(strings.TrimRight(string(parent), "/") + "/" + child)
}
