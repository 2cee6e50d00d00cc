package proxy

import (
	"fmt"
	"reflect"

	"github.com/godbus/dbus/v5"
)

// goTypeOf parses a single complete D-Bus type code starting at sig[i] and
// returns the Go type godbus decodes/encodes it as, along with the index
// just past the code it consumed. Compound types (arrays, dict entries,
// structs) recurse. This is the piece of plumbing a transparent proxy needs
// that no off-the-shelf library provides: godbus exports concrete
// encode/decode for a fixed Go value, never a "build me the matching type
// for this arbitrary signature" helper, since callers normally know their
// own argument types ahead of time. We do not.
func goTypeOf(sig string, i int) (reflect.Type, int, error) {
	if i >= len(sig) {
		return nil, i, fmt.Errorf("proxy: truncated signature %q", sig)
	}

	switch sig[i] {
	case 'y':
		return reflect.TypeOf(byte(0)), i + 1, nil
	case 'b':
		return reflect.TypeOf(false), i + 1, nil
	case 'n':
		return reflect.TypeOf(int16(0)), i + 1, nil
	case 'q':
		return reflect.TypeOf(uint16(0)), i + 1, nil
	case 'i':
		return reflect.TypeOf(int32(0)), i + 1, nil
	case 'u':
		return reflect.TypeOf(uint32(0)), i + 1, nil
	case 'x':
		return reflect.TypeOf(int64(0)), i + 1, nil
	case 't':
		return reflect.TypeOf(uint64(0)), i + 1, nil
	case 'd':
		return reflect.TypeOf(float64(0)), i + 1, nil
	case 's':
		return reflect.TypeOf(""), i + 1, nil
	case 'o':
		return reflect.TypeOf(dbus.ObjectPath("")), i + 1, nil
	case 'g':
		return reflect.TypeOf(dbus.Signature{}), i + 1, nil
	case 'v':
		return reflect.TypeOf(dbus.Variant{}), i + 1, nil
	case 'h':
		return reflect.TypeOf(dbus.UnixFDIndex(0)), i + 1, nil
	case 'a':
		return goTypeOfArray(sig, i)
	case '(':
		return goTypeOfStruct(sig, i)
	default:
		return nil, i, fmt.Errorf("proxy: unsupported signature code %q in %q", sig[i], sig)
	}
}

func goTypeOfArray(sig string, i int) (reflect.Type, int, error) {
	// i points at 'a'.
	if i+1 < len(sig) && sig[i+1] == '{' {
		keyType, j, err := goTypeOf(sig, i+2)
		if err != nil {
			return nil, j, err
		}
		valType, j2, err := goTypeOf(sig, j)
		if err != nil {
			return nil, j2, err
		}
		if j2 >= len(sig) || sig[j2] != '}' {
			return nil, j2, fmt.Errorf("proxy: malformed dict entry in %q", sig)
		}
		return reflect.MapOf(keyType, valType), j2 + 1, nil
	}
	elemType, j, err := goTypeOf(sig, i+1)
	if err != nil {
		return nil, j, err
	}
	return reflect.SliceOf(elemType), j, nil
}

func goTypeOfStruct(sig string, i int) (reflect.Type, int, error) {
	// i points at '('.
	var fields []reflect.StructField
	j := i + 1
	for j < len(sig) && sig[j] != ')' {
		ft, next, err := goTypeOf(sig, j)
		if err != nil {
			return nil, next, err
		}
		fields = append(fields, reflect.StructField{
			Name: fmt.Sprintf("F%d", len(fields)),
			Type: ft,
		})
		j = next
	}
	if j >= len(sig) {
		return nil, j, fmt.Errorf("proxy: unterminated struct in %q", sig)
	}
	return reflect.StructOf(fields), j + 1, nil
}

// argTypes splits a concatenated signature string ("sii", "a{sv}as", "")
// into the sequence of Go types godbus uses for each top-level argument.
func argTypes(sig string) ([]reflect.Type, error) {
	var types []reflect.Type
	i := 0
	for i < len(sig) {
		t, next, err := goTypeOf(sig, i)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
		i = next
	}
	return types, nil
}

// dbusErrorType is shared by every dynamically built handler as its
// trailing return value; godbus treats a non-nil *dbus.Error return from an
// exported method as the call failing with that error.
var dbusErrorType = reflect.TypeOf((*dbus.Error)(nil))

// makeHandlerFuncType builds the reflect.Type of a generic method handler
// for a method whose "in" arguments have wire signature inSig and whose
// "out" arguments have wire signature outSig: func(in...) (out..., *dbus.Error).
func makeHandlerFuncType(inSig, outSig string) (reflect.Type, []reflect.Type, []reflect.Type, error) {
	in, err := argTypes(inSig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("proxy: in args: %w", err)
	}
	out, err := argTypes(outSig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("proxy: out args: %w", err)
	}
	outWithErr := append(append([]reflect.Type{}, out...), dbusErrorType)
	return reflect.FuncOf(in, outWithErr, false), in, out, nil
}

// senderType is godbus's pseudo-argument type: a handler whose first
// parameter has this type receives the caller's unique bus name without it
// being present on the wire. Agent interception needs to know who is
// registering, which a plain forwarding handler never does.
var senderType = reflect.TypeOf(dbus.Sender(""))

// makeAgentHandlerFuncType is makeHandlerFuncType with dbus.Sender prepended
// to the input parameters, for methods the proxy intercepts instead of
// blindly forwarding.
func makeAgentHandlerFuncType(inSig, outSig string) (reflect.Type, []reflect.Type, []reflect.Type, error) {
	in, err := argTypes(inSig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("proxy: in args: %w", err)
	}
	out, err := argTypes(outSig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("proxy: out args: %w", err)
	}
	withSender := append([]reflect.Type{senderType}, in...)
	outWithErr := append(append([]reflect.Type{}, out...), dbusErrorType)
	return reflect.FuncOf(withSender, outWithErr, false), in, out, nil
}
