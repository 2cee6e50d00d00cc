package proxy

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// mirror realizes C3 for one object: it exports a method table for every
// interface cacheInterfaces reports as non-standard, plus a combined
// Introspectable answer and a Properties forwarder the first time the path
// is seen. Interfaces already registered are left untouched, so repeated
// calls (the object reappearing via a later InterfacesAdded) only add what
// is new, matching register_single_interface's incremental registration.
func (p *Proxy) mirror(path dbus.ObjectPath, node *introspect.Node) error {
	names := p.cacheInterfaces(path, node)
	if len(names) == 0 {
		return nil
	}

	p.mu.Lock()
	obj, exists := p.objects[path]
	if !exists {
		obj = &object{path: path, node: node, registrations: make(map[string]bool)}
		p.objects[path] = obj
	} else {
		obj.node = node
	}
	firstTime := !exists
	p.mu.Unlock()

	for _, name := range names {
		p.mu.RLock()
		already := obj.registrations[name]
		p.mu.RUnlock()
		if already {
			continue
		}

		iface, ok := p.lookupInterface(path, name)
		if !ok {
			continue
		}
		methods, err := p.buildMethodTable(path, iface)
		if err != nil {
			p.Msg.Errorf("mirror: %s %s: build method table: %v", path, name, err)
			continue
		}
		if err := p.target.ExportMethodTable(methods, path, name); err != nil {
			p.Msg.Errorf("mirror: %s %s: %v", path, name, err)
			continue
		}

		p.mu.Lock()
		obj.registrations[name] = true
		p.mu.Unlock()
	}

	if firstTime {
		if err := p.target.Export(introspect.NewIntrospectable(node), path, ifaceIntrospectable); err != nil {
			p.Msg.Errorf("mirror: %s introspectable: %v", path, err)
		}
		if err := p.target.Export(&propertiesProxy{path: path, p: p}, path, ifaceProperties); err != nil {
			p.Msg.Errorf("mirror: %s properties: %v", path, err)
		}
		p.stats.ObjectsMirrored.Add(1)
	}

	return nil
}

// dropInterfaces removes the named interfaces from the object at path,
// unexporting their method tables, and tears the whole object down once
// nothing non-standard remains — the Go realization of
// free_proxied_object's partial-removal path.
func (p *Proxy) dropInterfaces(path dbus.ObjectPath, names []string) {
	p.mu.Lock()
	obj, ok := p.objects[path]
	if !ok {
		p.mu.Unlock()
		return
	}

	var toUnexport []string
	for _, name := range names {
		if obj.registrations[name] {
			delete(obj.registrations, name)
			toUnexport = append(toUnexport, name)
		}
		delete(p.ifaceCache, cacheKey{path: path, iface: name})
	}
	empty := len(obj.registrations) == 0
	if empty {
		delete(p.objects, path)
	}
	p.mu.Unlock()

	for _, name := range toUnexport {
		if err := p.target.Export(nil, path, name); err != nil {
			p.Msg.Errorf("drop-interfaces: unexport %s %s: %v", path, name, err)
		}
	}
	if empty {
		p.target.Export(nil, path, ifaceIntrospectable)
		p.target.Export(nil, path, ifaceProperties)
	}
}

// propertiesProxy answers org.freedesktop.DBus.Properties for one mirrored
// object by forwarding synchronously to the same object on the source bus,
// the fixed-signature counterpart to buildMethodTable's dynamic one — Get,
// GetAll and Set have the same shape for every interface, so there is no
// need for reflect.MakeFunc here.
type propertiesProxy struct {
	path dbus.ObjectPath
	p    *Proxy
}

func (pp *propertiesProxy) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	call := pp.p.sourceObject(pp.path).Call(ifaceProperties+".Get", 0, iface, property)
	if call.Err != nil {
		return dbus.Variant{}, translateRemoteErr(call.Err)
	}
	if len(call.Body) != 1 {
		return dbus.Variant{}, dbus.MakeFailedError(ErrIntrospectFailed)
	}
	v, _ := call.Body[0].(dbus.Variant)
	return v, nil
}

func (pp *propertiesProxy) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	call := pp.p.sourceObject(pp.path).Call(ifaceProperties+".GetAll", 0, iface)
	if call.Err != nil {
		return nil, translateRemoteErr(call.Err)
	}
	if len(call.Body) != 1 {
		return nil, dbus.MakeFailedError(ErrIntrospectFailed)
	}
	m, _ := call.Body[0].(map[string]dbus.Variant)
	return m, nil
}

func (pp *propertiesProxy) Set(iface, property string, value dbus.Variant) *dbus.Error {
	call := pp.p.sourceObject(pp.path).Call(ifaceProperties+".Set", 0, iface, property, value)
	if call.Err != nil {
		return translateRemoteErr(call.Err)
	}
	return nil
}
