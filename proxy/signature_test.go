package proxy

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestArgTypesScalars(t *testing.T) {
	types, err := argTypes("sibd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []reflect.Type{
		reflect.TypeOf(""),
		reflect.TypeOf(int32(0)),
		reflect.TypeOf(false),
		reflect.TypeOf(float64(0)),
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(types))
	}
	for i, tp := range types {
		if tp != want[i] {
			t.Errorf("arg %d: expected %v, got %v", i, want[i], tp)
		}
	}
}

func TestArgTypesArrayAndDict(t *testing.T) {
	types, err := argTypes("asa{sv}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	if types[0] != reflect.TypeOf([]string{}) {
		t.Errorf("expected []string for 'as', got %v", types[0])
	}
	wantMap := reflect.TypeOf(map[string]dbus.Variant{})
	if types[1] != wantMap {
		t.Errorf("expected %v for 'a{sv}', got %v", wantMap, types[1])
	}
}

func TestArgTypesObjectPath(t *testing.T) {
	types, err := argTypes("o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if types[0] != reflect.TypeOf(dbus.ObjectPath("")) {
		t.Errorf("expected dbus.ObjectPath, got %v", types[0])
	}
}

func TestArgTypesStruct(t *testing.T) {
	types, err := argTypes("(si)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if types[0].Kind() != reflect.Struct {
		t.Fatalf("expected a struct type, got %v", types[0])
	}
	if types[0].NumField() != 2 {
		t.Fatalf("expected 2 fields, got %d", types[0].NumField())
	}
	if types[0].Field(0).Type != reflect.TypeOf("") || types[0].Field(1).Type != reflect.TypeOf(int32(0)) {
		t.Fatalf("unexpected struct field types: %v", types[0])
	}
}

func TestArgTypesEmptySignature(t *testing.T) {
	types, err := argTypes("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("expected no types for an empty signature, got %d", len(types))
	}
}

func TestMakeHandlerFuncTypeShape(t *testing.T) {
	funcType, in, out, err := makeHandlerFuncType("si", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in) != 2 || len(out) != 1 {
		t.Fatalf("expected 2 in args and 1 out arg, got in=%d out=%d", len(in), len(out))
	}
	if funcType.NumIn() != 2 {
		t.Fatalf("expected func type with 2 inputs, got %d", funcType.NumIn())
	}
	if funcType.NumOut() != 2 {
		t.Fatalf("expected func type with out+error = 2 outputs, got %d", funcType.NumOut())
	}
	if funcType.Out(1) != dbusErrorType {
		t.Fatalf("expected trailing output to be *dbus.Error, got %v", funcType.Out(1))
	}
}

func TestMakeAgentHandlerFuncTypePrependsSender(t *testing.T) {
	funcType, _, _, err := makeAgentHandlerFuncType("o", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if funcType.NumIn() != 2 {
		t.Fatalf("expected sender + one real arg = 2 inputs, got %d", funcType.NumIn())
	}
	if funcType.In(0) != senderType {
		t.Fatalf("expected first input to be dbus.Sender, got %v", funcType.In(0))
	}
	if funcType.In(1) != reflect.TypeOf(dbus.ObjectPath("")) {
		t.Fatalf("expected second input to be dbus.ObjectPath, got %v", funcType.In(1))
	}
}
