package proxy

import (
	"reflect"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// methodSignatures concatenates a method's "in" and "out" argument type
// codes into the two signature strings argTypes expects. An argument with
// no explicit Direction is "in", matching the introspection XML default.
func methodSignatures(m introspect.Method) (inSig, outSig string) {
	for _, a := range m.Args {
		if a.Direction == "out" {
			outSig += a.Type
		} else {
			inSig += a.Type
		}
	}
	return inSig, outSig
}

// buildMethodTable realizes C7's vtable construction for one interface:
// every method gets a reflect.MakeFunc handler with exactly the argument
// types its introspected signature calls for, each one forwarding to
// target on the source bus. This is the single generic dispatcher the
// original implements once in C and shares across every registration;
// reflect.MakeFunc is how Go expresses "one handler body, arbitrary call
// signature" without code generation.
//
// A method belonging to an interface with a matching agent.Rule (the
// manager interface a client calls Register/Unregister on) is routed to the
// agent-interception handler instead of a plain forward, matching
// handle_method_call_generic's branch for client-to-source Register*/
// Unregister* calls.
func (p *Proxy) buildMethodTable(path dbus.ObjectPath, iface *introspect.Interface) (map[string]interface{}, error) {
	methods := make(map[string]interface{}, len(iface.Methods))
	for _, m := range iface.Methods {
		inSig, outSig := methodSignatures(m)

		if rule := agentRuleForManagerInterface(iface.Name); rule != nil &&
			(rule.RegistersWith(m.Name) || rule.UnregisterMethod == m.Name) {
			funcType, _, outTypes, err := makeAgentHandlerFuncType(inSig, outSig)
			if err != nil {
				return nil, err
			}
			isRegister := rule.RegistersWith(m.Name)
			handler := p.makeAgentInterceptHandler(funcType, outTypes, path, iface.Name, m.Name, rule, isRegister)
			methods[m.Name] = handler.Interface()
			continue
		}

		funcType, _, outTypes, err := makeHandlerFuncType(inSig, outSig)
		if err != nil {
			return nil, err
		}
		peer := func() dbus.BusObject { return p.sourceObject(path) }
		handler := p.makeForwardHandler(funcType, outTypes, peer, iface.Name, m.Name)
		methods[m.Name] = handler.Interface()
	}
	return methods, nil
}

// makeForwardHandler returns the reflect.MakeFunc closure body for one
// method: marshal the call arguments straight through to peer(), translate
// a peer-side D-Bus error back onto the wire unchanged (proxy_return_error's
// remote-error preservation), and marshal the reply straight back. peer is
// called on every invocation; buildMethodTable passes a closure returning
// the source-bus object at the mirrored path.
func (p *Proxy) makeForwardHandler(funcType reflect.Type, outTypes []reflect.Type, peer func() dbus.BusObject, ifaceName, member string) reflect.Value {
	return reflect.MakeFunc(funcType, func(args []reflect.Value) []reflect.Value {
		callArgs := make([]interface{}, len(args))
		for i, a := range args {
			callArgs[i] = a.Interface()
		}

		call := peer().Call(ifaceName+"."+member, 0, callArgs...)
		p.stats.CallsForwarded.Add(1)

		results := make([]reflect.Value, len(outTypes)+1)

		if call.Err != nil {
			for i, t := range outTypes {
				results[i] = reflect.Zero(t)
			}
			results[len(outTypes)] = reflect.ValueOf(translateRemoteErr(call.Err))
			return results
		}

		for i, t := range outTypes {
			if i >= len(call.Body) {
				results[i] = reflect.Zero(t)
				continue
			}
			v := reflect.ValueOf(call.Body[i])
			if v.IsValid() && v.Type().AssignableTo(t) {
				results[i] = v
			} else if v.IsValid() && v.Type().ConvertibleTo(t) {
				results[i] = v.Convert(t)
			} else {
				results[i] = reflect.Zero(t)
			}
		}
		results[len(outTypes)] = reflect.Zero(dbusErrorType)
		return results
	})
}

// translateRemoteErr preserves a peer's D-Bus error name on the forwarded
// reply, matching proxy_return_error / g_dbus_error_get_remote_error rather
// than collapsing every forwarding failure into a generic Failed error.
func translateRemoteErr(err error) *dbus.Error {
	if derr, ok := err.(dbus.Error); ok {
		return dbus.NewError(derr.Name, derr.Body)
	}
	return dbus.MakeFailedError(err)
}
