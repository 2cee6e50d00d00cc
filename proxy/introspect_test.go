package proxy

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

func TestJoinPathRoot(t *testing.T) {
	if got := joinPath("/", "NetworkManager"); got != "/NetworkManager" {
		t.Fatalf("expected /NetworkManager, got %s", got)
	}
}

func TestJoinPathNested(t *testing.T) {
	if got := joinPath("/org/freedesktop/NetworkManager/Devices", "0"); got != "/org/freedesktop/NetworkManager/Devices/0" {
		t.Fatalf("unexpected joined path: %s", got)
	}
}

func TestNonStandardInterfacesFalseForStandardOnly(t *testing.T) {
	node := &introspect.Node{Interfaces: []introspect.Interface{
		{Name: ifaceIntrospectable},
		{Name: ifaceProperties},
		{Name: ifacePeer},
	}}
	if nonStandardInterfaces(node) {
		t.Fatalf("expected false when only standard interfaces are present")
	}
}

func TestNonStandardInterfacesTrueWhenExtraPresent(t *testing.T) {
	node := &introspect.Node{Interfaces: []introspect.Interface{
		{Name: ifaceIntrospectable},
		{Name: "org.freedesktop.NetworkManager"},
	}}
	if !nonStandardInterfaces(node) {
		t.Fatalf("expected true when a non-standard interface is present")
	}
}

func TestHasObjectManager(t *testing.T) {
	node := &introspect.Node{Interfaces: []introspect.Interface{{Name: ifaceObjectManager}}}
	if !hasObjectManager(node) {
		t.Fatalf("expected true when ObjectManager interface is declared")
	}
	node2 := &introspect.Node{Interfaces: []introspect.Interface{{Name: ifacePeer}}}
	if hasObjectManager(node2) {
		t.Fatalf("expected false when ObjectManager interface is not declared")
	}
}

func TestMethodSignaturesSplitsInOut(t *testing.T) {
	m := introspect.Method{
		Args: []introspect.Arg{
			{Name: "path", Type: "o", Direction: "in"},
			{Name: "capabilities", Type: "u", Direction: "in"},
			{Name: "ok", Type: "b", Direction: "out"},
		},
	}
	in, out := methodSignatures(m)
	if in != "ou" {
		t.Fatalf("expected in signature 'ou', got %q", in)
	}
	if out != "b" {
		t.Fatalf("expected out signature 'b', got %q", out)
	}
}

func TestMethodSignaturesDefaultsToIn(t *testing.T) {
	m := introspect.Method{Args: []introspect.Arg{{Name: "x", Type: "s"}}}
	in, out := methodSignatures(m)
	if in != "s" || out != "" {
		t.Fatalf("expected an arg with no explicit direction to default to in, got in=%q out=%q", in, out)
	}
}

func TestClassifyIntrospectErrNotFound(t *testing.T) {
	err := classifyIntrospectErr(dbus.Error{Name: errUnknownObject})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyIntrospectErrOther(t *testing.T) {
	err := classifyIntrospectErr(dbus.Error{Name: "org.example.SomethingElse"})
	if err == ErrNotFound {
		t.Fatalf("expected a wrapped error, not ErrNotFound, for an unrelated D-Bus error name")
	}
}
