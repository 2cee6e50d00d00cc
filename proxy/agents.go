package proxy

import (
	"reflect"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/tiiuae/ghaf-dbus-proxy/agent"
)

// agentRuleForManagerInterface returns the agent.Rule whose ManagerInterface
// equals iface, if any. Method-name matching (Register* vs Unregister)
// happens at the call site, since the caller already knows which method it
// is looking at.
func agentRuleForManagerInterface(iface string) *agent.Rule {
	for _, r := range agent.Rules {
		if r.ManagerInterface == iface {
			return r
		}
	}
	return nil
}

// makeAgentInterceptHandler builds the C8 interception handler for one
// Register*/Unregister method of a manager interface. It is the Go
// realization of handle_method_call_generic's client-to-source branch: it
// records the registration and only then forwards the call on to the real
// manager. For a rule with customisable paths the client's object path (the
// first argument) is rewritten to the proxy-owned UniquePath; for a
// fixed-path rule the client's path is the rule's ClientObjectPath and the
// arguments are forwarded unchanged.
func (p *Proxy) makeAgentInterceptHandler(funcType reflect.Type, outTypes []reflect.Type, managerPath dbus.ObjectPath, managerIface, method string, rule *agent.Rule, isRegister bool) reflect.Value {
	return reflect.MakeFunc(funcType, func(args []reflect.Value) []reflect.Value {
		sender := string(args[0].Interface().(dbus.Sender))
		rest := args[1:]

		results := make([]reflect.Value, len(outTypes)+1)
		fail := func(err error) []reflect.Value {
			for i, t := range outTypes {
				results[i] = reflect.Zero(t)
			}
			results[len(outTypes)] = reflect.ValueOf(dbus.MakeFailedError(err))
			return results
		}

		var forward bool
		var forwardArgs []interface{}
		if isRegister {
			clientPath := rule.ClientObjectPath
			if rule.ObjectPathCustomisable {
				if len(rest) == 0 {
					return fail(ErrRegistrationFailed)
				}
				argPath, ok := rest[0].Interface().(dbus.ObjectPath)
				if !ok {
					return fail(ErrRegistrationFailed)
				}
				clientPath = argPath
			}

			uniquePath, primary, duplicate := p.agents.Register(rule, managerPath, clientPath, sender)
			if primary && !duplicate {
				if err := p.watchAgentOwner(sender); err != nil {
					p.Msg.Errorf("agent: watch owner %s: %v", sender, err)
				}
				if err := p.exportAgentCallback(rule, sender, clientPath, uniquePath); err != nil {
					p.Msg.Errorf("agent: export callback at %s: %v", uniquePath, err)
				}
			}
			p.stats.ActiveAgents.Store(int64(p.agents.Count()))

			// Only the registration that actually produces a new primary
			// entry is forwarded to the real manager; a duplicate from the
			// same client or a secondary registration onto an already-held
			// fixed path is answered locally, matching
			// handle_agent_register_call's DidHandle=true short-circuit.
			forward = primary && !duplicate
			if rule.ObjectPathCustomisable {
				forwardArgs = append([]interface{}{uniquePath}, toInterfaces(rest[1:])...)
			} else {
				forwardArgs = toInterfaces(rest)
			}
		} else {
			path, wasPrimary, found := p.agents.UnregisterByOwner(sender)
			if found && wasPrimary {
				p.source.Export(nil, path, rule.ClientInterface)
			}
			p.stats.ActiveAgents.Store(int64(p.agents.Count()))
			// Only the primary's Unregister reaches the real manager; a
			// secondary's Unregister (or one from an unknown sender) is
			// answered locally without ever forwarding, matching
			// handle_agent_unregister_call's object_reg_id == 0 case.
			forward = found && wasPrimary
			forwardArgs = toInterfaces(rest)
		}

		if !forward {
			for i, t := range outTypes {
				results[i] = reflect.Zero(t)
			}
			results[len(outTypes)] = reflect.Zero(dbusErrorType)
			return results
		}

		call := p.sourceObject(managerPath).Call(managerIface+"."+method, 0, forwardArgs...)
		p.stats.CallsForwarded.Add(1)
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
			} else {
				results[i] = reflect.Zero(t)
			}
		}
		results[len(outTypes)] = reflect.Zero(dbusErrorType)
		return results
	})
}

func toInterfaces(vs []reflect.Value) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v.Interface()
	}
	return out
}

// watchAgentOwner subscribes to NameOwnerChanged filtered on sender, the Go
// realization of register_agent_callback, so the proxy learns when an
// agent's client process disappears without unregistering cleanly.
func (p *Proxy) watchAgentOwner(sender string) error {
	return p.source.AddMatchSignal(
		dbus.WithMatchInterface(nameDBusDaemon),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, sender),
	)
}

// exportAgentCallback builds and exports, on the source bus at uniquePath,
// a forwarding method table for rule.ClientInterface. It introspects the
// client's real object (sender, clientPath) once to learn its exact method
// signatures, since agent callback interfaces are small, fixed, well-known
// shapes, but each built handler resolves its forwarding destination afresh
// per call through lookup_owner (C8.4) rather than closing over sender and
// clientPath here, so the export still answers correctly if the registry
// entry's owner is replaced without a re-export.
func (p *Proxy) exportAgentCallback(rule *agent.Rule, sender string, clientPath, uniquePath dbus.ObjectPath) error {
	node, err := introspect.Call(p.target.Object(sender, clientPath))
	if err != nil {
		return classifyIntrospectErr(err)
	}

	var iface *introspect.Interface
	for i := range node.Interfaces {
		if node.Interfaces[i].Name == rule.ClientInterface {
			iface = &node.Interfaces[i]
			break
		}
	}
	if iface == nil {
		return ErrNotFound
	}

	methods := make(map[string]interface{}, len(iface.Methods))
	for _, m := range iface.Methods {
		inSig, outSig := methodSignatures(m)
		funcType, _, outTypes, err := makeHandlerFuncType(inSig, outSig)
		if err != nil {
			return err
		}
		methods[m.Name] = p.makeAgentCallbackHandler(funcType, outTypes, uniquePath, rule, m.Name).Interface()
	}

	return p.source.ExportMethodTable(methods, uniquePath, rule.ClientInterface)
}

// makeAgentCallbackHandler builds the handler for one method of a client's
// mirrored callback interface. This is the Go realization of C8.4's
// lookup_owner plus the connection == source_bus branch of
// handle_method_call_generic: every call resolves owner and client_path
// through the registry at call time, verifying iface/member against the
// rule, and replies with NoAgent when no matching registration is live
// instead of forwarding to a stale or guessed destination.
func (p *Proxy) makeAgentCallbackHandler(funcType reflect.Type, outTypes []reflect.Type, uniquePath dbus.ObjectPath, rule *agent.Rule, member string) reflect.Value {
	return reflect.MakeFunc(funcType, func(args []reflect.Value) []reflect.Value {
		results := make([]reflect.Value, len(outTypes)+1)
		fail := func(derr *dbus.Error) []reflect.Value {
			for i, t := range outTypes {
				results[i] = reflect.Zero(t)
			}
			results[len(outTypes)] = reflect.ValueOf(derr)
			return results
		}

		owner, clientPath, ok := p.agents.LookupOwner(uniquePath, rule.ClientInterface, member)
		if !ok {
			return fail(dbus.NewError(ErrNoAgent.Error(), nil))
		}

		callArgs := make([]interface{}, len(args))
		for i, a := range args {
			callArgs[i] = a.Interface()
		}

		call := p.target.Object(owner, clientPath).Call(rule.ClientInterface+"."+member, 0, callArgs...)
		p.stats.CallsForwarded.Add(1)
		if call.Err != nil {
			return fail(translateRemoteErr(call.Err))
		}

		for i, t := range outTypes {
			if i >= len(call.Body) {
				results[i] = reflect.Zero(t)
				continue
			}
			v := reflect.ValueOf(call.Body[i])
			if v.IsValid() && v.Type().AssignableTo(t) {
				results[i] = v
			} else {
				results[i] = reflect.Zero(t)
			}
		}
		results[len(outTypes)] = reflect.Zero(dbusErrorType)
		return results
	})
}

// onAgentOwnerVanished handles a NameOwnerChanged signal reporting that
// owner has left the bus with no new owner: every agent registration it
// held is torn down, and for the primary one the source-side Unregister is
// invoked synchronously first, matching
// unregister_all_agent_registrations's ordering.
func (p *Proxy) onAgentOwnerVanished(owner string) {
	for _, e := range p.agents.Vanished(owner) {
		if !e.Primary {
			continue
		}
		call := p.sourceObject(e.ManagerPath).Call(e.Rule.ManagerInterface+"."+e.Rule.UnregisterMethod, 0)
		if call.Err != nil {
			p.Msg.Verbosef("agent: source-side unregister for vanished owner %s: %v", owner, call.Err)
		}
		p.source.Export(nil, e.UniquePath, e.Rule.ClientInterface)
	}
}
