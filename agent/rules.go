// Package agent implements the callback-agent registry (component C8):
// clients register an object path with a well-known manager service (for
// example NetworkManager's secret agent protocol) so the manager can call
// back into them, and the proxy has to mirror that registration across
// buses under a rewritten identity.
package agent

import "github.com/godbus/dbus/v5"

// Rule describes one callback-agent family the proxy knows how to
// intercept. It is grounded directly on original_source's static
// callbacks_rules table (callback-rules.cpp): every field here has a
// one-to-one counterpart there.
type Rule struct {
	// BusName is the manager service's well-known bus name, e.g.
	// "org.freedesktop.NetworkManager".
	BusName string

	// ManagerInterface is the interface the Register/Unregister methods
	// live on, e.g. "org.freedesktop.NetworkManager.AgentManager".
	ManagerInterface string

	// RegisterMethods lists every method name that registers an agent for
	// this family. NetworkManager exposes both Register and
	// RegisterWithCapabilities for the same underlying registration; the
	// distilled spec named only one, original_source's table lists both.
	RegisterMethods []string

	// UnregisterMethod is the single method name that releases a
	// registration.
	UnregisterMethod string

	// ClientObjectPath is the object path the client must export the
	// callback interface on when ObjectPathCustomisable is false.
	ClientObjectPath dbus.ObjectPath

	// ObjectPathCustomisable selects per-client unique path synthesis
	// (the client's agent path argument + "/" + sanitized sender) instead
	// of ClientObjectPath.
	// NetworkManager's secret agent always exports at a fixed path, so
	// this is false for the only built-in rule; it exists so a future
	// rule that does allow per-client paths does not need new mechanism.
	ObjectPathCustomisable bool

	// ClientInterface is the interface the manager calls back into on the
	// client's object path.
	ClientInterface string

	// ClientMethods lists every method of ClientInterface the proxy must
	// mirror toward the client.
	ClientMethods []string
}

// RegistersWith reports whether method is one of Rule's register methods.
func (r *Rule) RegistersWith(method string) bool {
	for _, m := range r.RegisterMethods {
		if m == method {
			return true
		}
	}
	return false
}

const (
	nmBusName          = "org.freedesktop.NetworkManager"
	nmAgentManagerIface = "org.freedesktop.NetworkManager.AgentManager"
	nmSecretAgentIface  = "org.freedesktop.NetworkManager.SecretAgent"
	nmAgentPath         = dbus.ObjectPath("/org/freedesktop/NetworkManager/SecretAgent")
)

// Rules is the static table of every callback-agent family the proxy
// understands. Extending support for a new manager service means appending
// an entry here; the proxy core never builds or mutates this table.
var Rules = []*Rule{
	{
		BusName:                nmBusName,
		ManagerInterface:       nmAgentManagerIface,
		RegisterMethods:        []string{"Register", "RegisterWithCapabilities"},
		UnregisterMethod:       "Unregister",
		ClientObjectPath:       nmAgentPath,
		ObjectPathCustomisable: false,
		ClientInterface:        nmSecretAgentIface,
		ClientMethods: []string{
			"GetSecrets",
			"CancelGetSecrets",
			"SaveSecrets",
			"DeleteSecrets",
		},
	},
}
