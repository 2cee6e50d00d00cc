// Package message provides the logging sink injected into the proxy core.
//
// A single Msg implementation is constructed in main and threaded through
// every component explicitly; nothing in this module reaches for a package
// level logger of its own.
package message

import (
	"log"
	"sync/atomic"
)

// Msg is the logging sink used by every proxy component. Verbosef and Infof
// are gated by the --verbose and --info flags respectively; Errorf always
// prints, matching the spec's propagation policy that only ConnectFailed and
// NameOwnFailed ever reach the process exit path, everything else is just
// logged.
type Msg interface {
	IsVerbose() bool
	IsInfo() bool

	Verbosef(format string, v ...any)
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
}

// DefaultMsg is a Msg backed by the standard library log package.
type DefaultMsg struct {
	verbose atomic.Bool
	info    atomic.Bool
}

// NewDefaultMsg returns a DefaultMsg with verbose/info logging set as given.
func NewDefaultMsg(verbose, info bool) *DefaultMsg {
	m := new(DefaultMsg)
	m.verbose.Store(verbose)
	m.info.Store(info)
	return m
}

func (m *DefaultMsg) IsVerbose() bool { return m.verbose.Load() }
func (m *DefaultMsg) IsInfo() bool    { return m.info.Load() }

func (m *DefaultMsg) Verbosef(format string, v ...any) {
	if m.verbose.Load() {
		log.Printf("[verbose] "+format, v...)
	}
}

func (m *DefaultMsg) Infof(format string, v ...any) {
	if m.info.Load() || m.verbose.Load() {
		log.Printf("[info] "+format, v...)
	}
}

func (m *DefaultMsg) Errorf(format string, v ...any) {
	log.Printf("[error] "+format, v...)
}
