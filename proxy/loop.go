package proxy

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
)

// statsInterval is how often a debug summary of the forwarding counters is
// logged when --verbose is set (the supplemented "structured forwarding
// metrics" feature).
const statsInterval = 30 * time.Second

// Run is C9: the single dedicated goroutine that owns every signal
// delivered from the source bus, until ctx is cancelled (SIGINT/SIGTERM) or
// the source service vanishes. All table mutation triggered by a signal
// happens here, serialized with whatever an exported method handler does
// under p.mu — the cooperative-reactor discipline realized as one consumer
// goroutine plus a shared lock rather than a literal single OS thread.
func (p *Proxy) Run(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case sig := <-p.sigCh:
			p.dispatchSignal(sig)
		case <-ticker.C:
			p.logStats()
		}
	}
}

// triggerShutdown unblocks Run from anywhere (a NameOwnerChanged handler
// noticing the source vanished), exactly once.
func (p *Proxy) triggerShutdown() {
	p.shutdownOnce.Do(func() { close(p.done) })
}

// Shutdown tears the proxy down in the order cleanup_proxy_state specifies:
// stop receiving signals, unregister every agent (forwarding the source
// side Unregister first), unexport every mirrored object, then close both
// connections.
func (p *Proxy) Shutdown() {
	p.source.RemoveSignal(p.sigCh)

	for _, e := range p.agents.Clear() {
		if !e.Primary {
			continue
		}
		call := p.sourceObject(e.ManagerPath).Call(e.Rule.ManagerInterface+"."+e.Rule.UnregisterMethod, 0)
		if call.Err != nil {
			p.Msg.Verbosef("shutdown: source-side unregister: %v", call.Err)
		}
		p.source.Export(nil, e.UniquePath, e.Rule.ClientInterface)
	}

	p.mu.Lock()
	type pending struct {
		path  dbus.ObjectPath
		names []string
	}
	drops := make([]pending, 0, len(p.objects))
	for path, obj := range p.objects {
		names := make([]string, 0, len(obj.registrations))
		for name := range obj.registrations {
			names = append(names, name)
		}
		drops = append(drops, pending{path: path, names: names})
	}
	p.mu.Unlock()

	for _, d := range drops {
		p.dropInterfaces(d.path, d.names)
	}

	p.Close()
}

func (p *Proxy) logStats() {
	if !p.Msg.IsVerbose() {
		return
	}
	s := p.Stats()
	p.Msg.Verbosef("stats: objects=%d signals=%d calls=%d agents=%d",
		s.ObjectsMirrored.Load(), s.SignalsForwarded.Load(), s.CallsForwarded.Load(), s.ActiveAgents.Load())
}
