package agent

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// State is the lifecycle of one agent registration.
type State int

const (
	Pending State = iota
	Registered
	Releasing
	Gone
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Registered:
		return "registered"
	case Releasing:
		return "releasing"
	default:
		return "gone"
	}
}

// entry is the Go realization of AgentData: bookkeeping for one client that
// registered against one Rule.
type entry struct {
	Rule *Rule

	// UniquePath is the object path the proxy exports the client's
	// callback interface on for forwarding, derived once at registration.
	UniquePath dbus.ObjectPath

	// Owner is the unique bus name of the client that registered.
	Owner string

	// ClientPath is the client's own object path on the target bus, the
	// forwarding destination lookup_owner resolves to.
	ClientPath dbus.ObjectPath

	// ManagerPath is the object path on the manager's bus the client
	// originally registered against (carried through so Unregister on
	// the source side targets the same object).
	ManagerPath dbus.ObjectPath

	// Primary is true for the registration that actually holds the
	// exported method-table handle (object_reg_id != 0 in the original).
	// A secondary registration shares UniquePath with the primary under a
	// different Owner and is torn down without touching the export.
	Primary bool

	State State
}

// regKey identifies one registration: a fixed-path rule can hold a primary
// and any number of secondary registrations under the same UniquePath
// simultaneously, one per Owner, so UniquePath alone is not a unique key.
type regKey struct {
	path  dbus.ObjectPath
	owner string
}

// Registry tracks every live agent registration, keyed by (unique_path,
// owner). It is the Go realization of the agents_registry GPtrArray plus the
// linear-scan helpers built on top of it (find_registered_path,
// get_agent_name).
type Registry struct {
	mu      sync.RWMutex
	entries map[regKey]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[regKey]*entry)}
}

// sanitizeForPath substitutes the characters D-Bus object paths forbid but
// unique bus names always contain, matching the original's dot/colon
// substitution when synthesizing a per-client path.
func sanitizeForPath(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

// uniquePathFor computes the object path a registration under rule and
// sender resolves to, matching handle_agent_register_call exactly: a fixed
// path when the rule is not customisable, otherwise the client's agent path
// plus the sanitized sender appended as a path segment.
func uniquePathFor(rule *Rule, agentPath dbus.ObjectPath, sender string) dbus.ObjectPath {
	if !rule.ObjectPathCustomisable {
		return rule.ClientObjectPath
	}
	return dbus.ObjectPath(string(agentPath) + "/" + sanitizeForPath(sender))
}

// Register records a client's registration for rule at clientPath. It
// returns the resolved UniquePath, whether this call produced the primary
// registration (the caller must export the method table only when primary
// is true), and whether the call was a duplicate from the same sender
// (idempotent, no new bookkeeping needed).
//
// Three cases, matching handle_agent_register_call:
//   - no existing primary entry at the resolved path: new primary
//     registration.
//   - existing entry from the same Owner at the resolved path: duplicate
//     registration from the same client, returned as-is.
//   - existing primary entry at the resolved path from a different Owner: a
//     secondary registration layered alongside it (only possible for
//     non-customisable rules, where every client resolves to the same fixed
//     path); it is stored under its own key and does not get its own
//     export, but the primary entry is left untouched.
func (r *Registry) Register(rule *Rule, managerPath, clientPath dbus.ObjectPath, sender string) (path dbus.ObjectPath, primary bool, duplicate bool) {
	path = uniquePathFor(rule, clientPath, sender)
	key := regKey{path: path, owner: sender}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return path, existing.Primary, true
	}

	hasPrimary := false
	for k, e := range r.entries {
		if k.path == path && e.Primary {
			hasPrimary = true
			break
		}
	}

	r.entries[key] = &entry{
		Rule:        rule,
		UniquePath:  path,
		Owner:       sender,
		ClientPath:  clientPath,
		ManagerPath: managerPath,
		Primary:     !hasPrimary,
		State:       Registered,
	}
	return path, !hasPrimary, false
}

// UnregisterByOwner removes whichever registration sender owns, without the
// caller needing to already know its UniquePath — the shape an Unregister
// call with no path argument needs, since the client only identifies itself
// by its unique bus name.
func (r *Registry) UnregisterByOwner(sender string) (path dbus.ObjectPath, wasPrimary bool, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, e := range r.entries {
		if e.Owner != sender {
			continue
		}
		delete(r.entries, k)
		return k.path, e.Primary, true
	}
	return "", false, false
}

// LookupOwner is the Go realization of C8.4's lookup_owner(unique_path,
// interface, member): it finds the primary registration at path, verifies
// that iface matches its rule's client_interface and member is one of the
// rule's client_methods, and if so returns the owner to forward to plus the
// client's own object path. Otherwise it reports !ok, which the caller turns
// into a NoAgent error rather than guessing a destination.
func (r *Registry) LookupOwner(path dbus.ObjectPath, iface, member string) (owner string, clientPath dbus.ObjectPath, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k, e := range r.entries {
		if k.path != path || !e.Primary {
			continue
		}
		if e.Rule.ClientInterface != iface {
			return "", "", false
		}
		for _, m := range e.Rule.ClientMethods {
			if m == member {
				return e.Owner, e.ClientPath, true
			}
		}
		return "", "", false
	}
	return "", "", false
}

// Vanished is called from the NameOwnerChanged handler when owner has lost
// the bus, i.e. newOwner == "". It removes every entry owned by owner and
// returns all of them, primary and secondary; for each primary one the
// caller must call Unregister on the source bus and unexport it, matching
// unregister_all_agent_registrations's ordering (forward cleanup first,
// export teardown after).
//
// An empty oldOwner (a brand new client appearing) and a non-empty newOwner
// (an owner rename) are not vanish events; the proxy's
// handleNameOwnerChanged filters those out
// before calling Vanished, per the original's on_name_owner_changed, which
// ignores the former as a new-client case and logs-and-ignores the latter
// since the proxy does not support renaming a live registration onto a new
// unique name.
func (r *Registry) Vanished(owner string) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*entry
	for k, e := range r.entries {
		if e.Owner != owner {
			continue
		}
		delete(r.entries, k)
		removed = append(removed, e)
	}
	return removed
}

// Clear empties the registry and returns every entry it held, used by
// shutdown to unregister everything regardless of owner.
func (r *Registry) Clear() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[regKey]*entry)
	return entries
}

// Count reports the number of live registrations, for Stats.ActiveAgents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
