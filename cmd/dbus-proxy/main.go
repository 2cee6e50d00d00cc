// Command dbus-proxy republishes one source D-Bus service's object tree
// onto a second bus under a different well-known name, forwarding method
// calls, signals, and NetworkManager-style agent callback registrations
// between the two.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/tiiuae/ghaf-dbus-proxy/message"
	"github.com/tiiuae/ghaf-dbus-proxy/proxy"
)

func main() {
	log.SetPrefix("dbus-proxy: ")
	log.SetFlags(0)

	cfg, verbose, info, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	base := message.NewDefaultMsg(verbose, info)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var msg message.Msg = base
	fatal := &fatalOnErrorMsg{inner: base, trigger: stop}
	if cfg.FatalWarnings {
		msg = fatal
	}

	if err := run(ctx, cfg, msg); err != nil {
		msg.Errorf("%v", err)
		if errors.Is(err, proxy.ErrConnectFailed) || errors.Is(err, proxy.ErrNameOwnFailed) {
			os.Exit(1)
		}
		os.Exit(0)
	}
	if cfg.FatalWarnings && fatal.triggered.Load() {
		os.Exit(1)
	}
}

// fatalOnErrorMsg implements --fatal-warnings: any message logged through
// Errorf (for example an introspection or registration failure) that would
// otherwise just be logged and absorbed instead triggers shutdown. Messages
// logged through Verbosef or Infof, such as the ignored-rename notice, and
// errors returned to a D-Bus caller as a reply do not. main is still the
// only place that calls os.Exit.
type fatalOnErrorMsg struct {
	inner     message.Msg
	trigger   func()
	triggered atomic.Bool
}

func (f *fatalOnErrorMsg) IsVerbose() bool { return f.inner.IsVerbose() }
func (f *fatalOnErrorMsg) IsInfo() bool    { return f.inner.IsInfo() }

func (f *fatalOnErrorMsg) Verbosef(format string, v ...any) { f.inner.Verbosef(format, v...) }
func (f *fatalOnErrorMsg) Infof(format string, v ...any)    { f.inner.Infof(format, v...) }

func (f *fatalOnErrorMsg) Errorf(format string, v ...any) {
	f.inner.Errorf(format, v...)
	if f.triggered.CompareAndSwap(false, true) {
		f.trigger()
	}
}

func parseFlags(args []string) (proxy.Config, bool, bool, error) {
	fs := flag.NewFlagSet("dbus-proxy", flag.ContinueOnError)

	var (
		sourceBusName    string
		sourceObjectPath string
		proxyBusName     string
		sourceBusType    string
		targetBusType    string
		verbose          bool
		info             bool
		fatalWarnings    bool
	)

	fs.StringVar(&sourceBusName, "source-bus-name", "", "well-known bus name of the service to proxy")
	fs.StringVar(&sourceObjectPath, "source-object-path", "", "root object path to mirror from the source service")
	fs.StringVar(&proxyBusName, "proxy-bus-name", "", "well-known bus name the proxy republishes the service under")
	fs.StringVar(&sourceBusType, "source-bus-type", "system", "bus the source service lives on: system or session")
	fs.StringVar(&targetBusType, "target-bus-type", "session", "bus the proxy republishes onto: system or session")
	fs.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&info, "info", false, "enable informational logging")
	fs.BoolVar(&fatalWarnings, "fatal-warnings", false, "treat recoverable warnings as fatal")

	if err := fs.Parse(args); err != nil {
		return proxy.Config{}, false, false, err
	}

	cfg := proxy.Config{
		SourceBusName:    sourceBusName,
		SourceObjectPath: dbus.ObjectPath(sourceObjectPath),
		TargetBusName:    proxyBusName,
		SourceBusType:    proxy.ParseBusType(sourceBusType),
		TargetBusType:    proxy.ParseBusType(targetBusType),
		Verbose:          verbose,
		Info:             info,
		FatalWarnings:    fatalWarnings,
	}
	return cfg, verbose, info, nil
}

// run wires the whole proxy lifecycle together: connect both buses,
// discover and mirror the initial object tree, start signal forwarding, and
// block until ctx is cancelled or the source service vanishes, then tear
// down in order.
func run(ctx context.Context, cfg proxy.Config, msg message.Msg) error {
	p := proxy.New(cfg, msg)

	if err := p.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := p.Discover(ctx); err != nil {
		msg.Errorf("initial discovery did not complete: %v", err)
	}

	if err := p.SetupSignalForwarding(); err != nil {
		return fmt.Errorf("setup signal forwarding: %w", err)
	}

	msg.Infof("proxying %s%s as %s on %s, bridged from %s on %s",
		cfg.SourceBusName, cfg.SourceObjectPath, cfg.TargetBusName, cfg.TargetBusType, cfg.SourceBusName, cfg.SourceBusType)

	p.Run(ctx)
	p.Shutdown()
	return nil
}
