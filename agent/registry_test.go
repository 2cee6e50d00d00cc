package agent

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func fixedRule() *Rule {
	return &Rule{
		BusName:                "org.freedesktop.NetworkManager",
		ManagerInterface:       "org.freedesktop.NetworkManager.AgentManager",
		RegisterMethods:        []string{"Register", "RegisterWithCapabilities"},
		UnregisterMethod:       "Unregister",
		ClientObjectPath:       "/org/freedesktop/NetworkManager/SecretAgent",
		ObjectPathCustomisable: false,
		ClientInterface:        "org.freedesktop.NetworkManager.SecretAgent",
		ClientMethods:          []string{"GetSecrets"},
	}
}

func customisableRule() *Rule {
	r := fixedRule()
	r.ObjectPathCustomisable = true
	r.ClientObjectPath = "/org/example/Agent"
	return r
}

func TestRegisterNewIsPrimary(t *testing.T) {
	r := NewRegistry()
	rule := fixedRule()

	path, primary, dup := r.Register(rule, "/mgr", "/org/example/client1", ":1.1")
	if path != rule.ClientObjectPath {
		t.Fatalf("expected fixed path %s, got %s", rule.ClientObjectPath, path)
	}
	if !primary || dup {
		t.Fatalf("expected primary=true duplicate=false, got primary=%v duplicate=%v", primary, dup)
	}
}

func TestRegisterDuplicateSameSenderIsIdempotent(t *testing.T) {
	r := NewRegistry()
	rule := fixedRule()

	r.Register(rule, "/mgr", "/org/example/client1", ":1.1")
	_, primary, dup := r.Register(rule, "/mgr", "/org/example/client1", ":1.1")
	if !dup {
		t.Fatalf("expected duplicate registration from same sender to be reported as such")
	}
	if !primary {
		t.Fatalf("a duplicate of a primary registration should still report primary=true")
	}
	if r.Count() != 1 {
		t.Fatalf("expected still exactly one entry, got %d", r.Count())
	}
}

func TestRegisterSecondaryDifferentSenderCoexistsWithPrimary(t *testing.T) {
	r := NewRegistry()
	rule := fixedRule()

	path1, primary1, _ := r.Register(rule, "/mgr", "/org/example/client1", ":1.1")
	path2, primary2, dup := r.Register(rule, "/mgr", "/org/example/client2", ":1.2")

	if !primary1 {
		t.Fatalf("first registration must be primary")
	}
	if primary2 {
		t.Fatalf("a second sender registering onto the same fixed path must not become primary")
	}
	if dup {
		t.Fatalf("a different sender is not a duplicate")
	}
	if path1 != path2 {
		t.Fatalf("both registrations must resolve to the same fixed path")
	}

	// Both entries must coexist: the primary must still be findable via
	// lookup_owner after the secondary registers.
	owner, clientPath, ok := r.LookupOwner(path1, rule.ClientInterface, "GetSecrets")
	if !ok || owner != ":1.1" || clientPath != "/org/example/client1" {
		t.Fatalf("expected primary owner :1.1 at /org/example/client1 to still be resolvable, got owner=%s clientPath=%s ok=%v", owner, clientPath, ok)
	}
	if r.Count() != 2 {
		t.Fatalf("expected both primary and secondary entries to be tracked, got %d", r.Count())
	}

	// Unregistering the primary's owner must not disturb the secondary.
	unregPath, wasPrimary, found := r.UnregisterByOwner(":1.1")
	if !found || !wasPrimary || unregPath != path1 {
		t.Fatalf("expected primary unregister to succeed, got found=%v primary=%v path=%s", found, wasPrimary, unregPath)
	}
	if r.Count() != 1 {
		t.Fatalf("expected secondary entry to survive primary's unregister, got %d entries", r.Count())
	}
}

func TestUniquePathCustomisableSanitizesSender(t *testing.T) {
	r := NewRegistry()
	rule := customisableRule()

	path, _, _ := r.Register(rule, "/mgr", "/org/example/client1", ":1.42")
	want := dbus.ObjectPath("/org/example/client1/_1_42")
	if path != want {
		t.Fatalf("expected sanitized unique path %s, got %s", want, path)
	}
}

func TestUnregisterByOwnerRequiresMatchingOwner(t *testing.T) {
	r := NewRegistry()
	rule := fixedRule()
	r.Register(rule, "/mgr", "/org/example/client1", ":1.1")

	if _, _, found := r.UnregisterByOwner(":1.2"); found {
		t.Fatalf("unregister from an unregistered owner must not succeed")
	}
	_, wasPrimary, found := r.UnregisterByOwner(":1.1")
	if !found || !wasPrimary {
		t.Fatalf("expected primary unregister to succeed, got found=%v primary=%v", found, wasPrimary)
	}
}

func TestVanishedOnlyRemovesMatchingOwner(t *testing.T) {
	r := NewRegistry()
	rule := customisableRule()

	r.Register(rule, "/mgr", "/org/example/client1", ":1.1")
	r.Register(rule, "/mgr", "/org/example/client2", ":1.2")

	removed := r.Vanished(":1.1")
	if len(removed) != 1 {
		t.Fatalf("expected exactly one entry removed, got %d", len(removed))
	}
	if r.Count() != 1 {
		t.Fatalf("expected one remaining entry, got %d", r.Count())
	}
}

func TestLookupOwnerRejectsWrongInterfaceOrMethod(t *testing.T) {
	r := NewRegistry()
	rule := fixedRule()
	path, _, _ := r.Register(rule, "/mgr", "/org/example/client1", ":1.1")

	if _, _, ok := r.LookupOwner(path, "org.example.WrongInterface", "GetSecrets"); ok {
		t.Fatalf("expected lookup against the wrong interface to fail")
	}
	if _, _, ok := r.LookupOwner(path, rule.ClientInterface, "NotAMethod"); ok {
		t.Fatalf("expected lookup for an unlisted method to fail")
	}
	owner, clientPath, ok := r.LookupOwner(path, rule.ClientInterface, "GetSecrets")
	if !ok || owner != ":1.1" || clientPath != "/org/example/client1" {
		t.Fatalf("expected a valid lookup to succeed, got owner=%s clientPath=%s ok=%v", owner, clientPath, ok)
	}
}

func TestRegistersWithMatchesRegisterAndCapabilities(t *testing.T) {
	rule := fixedRule()
	if !rule.RegistersWith("Register") || !rule.RegistersWith("RegisterWithCapabilities") {
		t.Fatalf("expected both register method names to match")
	}
	if rule.RegistersWith("Unregister") {
		t.Fatalf("expected Unregister not to match RegistersWith")
	}
}
