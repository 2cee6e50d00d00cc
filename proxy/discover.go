package proxy

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
)

// discoverTimeout bounds the whole initial walk, matching
// discover_and_proxy_object_tree's 10 second timeout.
const discoverTimeout = 10 * time.Second

// Discover realizes C4: a depth-first walk of the source object tree
// starting at Config.SourceObjectPath, mirroring every object that exposes
// more than the standard interfaces, and short-circuiting into
// ObjectManager enumeration the moment a node advertises it.
func (p *Proxy) Discover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	return p.discoverNode(ctx, p.Config.SourceObjectPath)
}

func (p *Proxy) discoverNode(ctx context.Context, path dbus.ObjectPath) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	node, err := p.introspectPath(path)
	if err != nil {
		if err == ErrNotFound {
			p.Msg.Verbosef("discover: %s vanished before introspection, skipping", path)
			return nil
		}
		p.Msg.Errorf("discover: introspect %s: %v", path, err)
		return nil
	}

	if nonStandardInterfaces(node) {
		if err := p.mirror(path, node); err != nil {
			p.Msg.Errorf("discover: mirror %s: %v", path, err)
		}
	}

	if hasObjectManager(node) {
		if err := p.proxyObjectManagerObjects(path); err != nil {
			p.Msg.Errorf("discover: GetManagedObjects on %s: %v", path, err)
		}
		return nil
	}

	for _, child := range node.Children {
		if child.Name == "" {
			continue
		}
		if err := p.discoverNode(ctx, joinPath(path, child.Name)); err != nil {
			return err
		}
	}
	return nil
}
