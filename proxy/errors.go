package proxy

import "errors"

// Sentinel errors for the proxy core. Fatal kinds (ErrConnectFailed,
// ErrNameOwnFailed) propagate to main via a wrapped error; non-fatal kinds
// are either logged through message.Msg or, for ErrRegistrationFailed and
// ErrNoAgent raised inside a method handler, returned to the D-Bus caller as
// an error reply. None of them reaches main.
var (
	ErrConnectFailed   = errors.New("proxy: failed to connect to bus")
	ErrNameOwnFailed    = errors.New("proxy: failed to acquire well-known name")
	ErrSourceVanished  = errors.New("proxy: source service is no longer available")

	ErrNotFound          = errors.New("proxy: object or interface not found")
	ErrIntrospectFailed  = errors.New("proxy: introspection failed")
	ErrRegistrationFailed = errors.New("proxy: method table registration failed")
	ErrNoAgent           = errors.New("proxy: no registered agent for this forward")
	ErrUnsupportedRename = errors.New("proxy: source owner rename is not supported")
)
