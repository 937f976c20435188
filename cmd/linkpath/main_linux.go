//go:build linux

// Command linkpath runs the forwarding engine's control plane: the Link
// Registry, Default-Route Tracker, Policy Store, Attachment Store, and
// Quality Tracker, exposed over net/rpc and a websocket notification hub,
// generalizing the teacher's cmd/start.go process-wiring shape
// (sub-managers constructed once, handed to a Server, RPC listener opened)
// to this engine's own components.
//
// The Datapath Node's FIB and ACLMatcher collaborators are supplied by the
// surrounding routing/firewall product (spec.md §1 treats both as out of
// scope for this engine); this binary builds the components a Node reads
// from but constructs no datapath.Node or decision.Module, and leaves
// NFQUEUE/NFLOG startup to whatever process embeds this engine alongside a
// real FIB and ACL matcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/clock"
	"grimm.is/linkpath/internal/config"
	"grimm.is/linkpath/internal/ctlplane"
	"grimm.is/linkpath/internal/defroute"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/localaddr"
	"grimm.is/linkpath/internal/logging"
	"grimm.is/linkpath/internal/policy"
	"grimm.is/linkpath/internal/quality"
)

func main() {
	configPath := flag.String("config", "", "path to an HCL engine-settings file (optional, defaults used otherwise)")
	rpcAddr := flag.String("rpc-addr", ":7171", "control-plane net/rpc listen address")
	notifyAddr := flag.String("notify-addr", ":7172", "websocket notification listen address")
	syslogHost := flag.String("syslog-host", "", "remote syslog server host (logs go to stderr only if empty)")
	syslogPort := flag.Int("syslog-port", 514, "remote syslog server port")
	syslogProto := flag.String("syslog-proto", "udp", "remote syslog protocol (udp or tcp)")
	flag.Parse()

	if *syslogHost != "" {
		writer, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Enabled:  true,
			Host:     *syslogHost,
			Port:     *syslogPort,
			Protocol: *syslogProto,
			Tag:      "linkpath",
			Facility: 1,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "linkpath: syslog dial failed, continuing with stderr only: %v\n", err)
		} else {
			defer writer.Close()
			logCfg := logging.DefaultConfig()
			logCfg.Output = logging.MultiWriter(os.Stderr, writer)
			logging.SetDefault(logging.New(logCfg))
			logging.Info("syslog forwarding enabled", "host", *syslogHost, "port", *syslogPort)
		}
	}

	log := logging.WithComponent("linkpath")

	if err := clock.EnsureSaneTime(); err != nil {
		log.Warn("system clock sanity check failed, continuing with unreliable time", "error", err)
	}
	defer func() {
		if err := clock.SaveAnchor(); err != nil {
			log.Warn("failed to save clock anchor", "error", err)
		}
	}()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	local := localaddr.New()
	if err := localaddr.WatchNetlink(ctx, local); err != nil {
		log.Warn("local address watch failed to start", "error", err)
	}

	links := linkreg.New(linkreg.NewNetlinkRegistrar(), nil)
	defRoute := defroute.New(defroute.NewNetlinkSource())

	policies := policy.NewStore(nil)
	attachments := attach.NewStore(policies, nil, nil)

	qualTable := cfg.QualityTable()
	qual := quality.New(links, links, qualTable)

	hub := ctlplane.NewNotificationHub()
	server := ctlplane.NewServer(links, defRoute, policies, attachments, qual, hub)

	if err := rpc.Register(server); err != nil {
		log.Error("rpc register failed", "error", err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", *rpcAddr)
	if err != nil {
		log.Error("rpc listen failed", "addr", *rpcAddr, "error", err)
		os.Exit(1)
	}
	defer listener.Close()
	log.Info("control plane listening", "addr", *rpcAddr)

	go rpc.Accept(listener)

	notifyServer := &http.Server{Addr: *notifyAddr, Handler: hub}
	go func() {
		if err := notifyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("notification server failed", "error", err)
		}
	}()
	log.Info("notification hub listening", "addr", *notifyAddr)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = notifyServer.Shutdown(shutdownCtx)

	fmt.Fprintln(os.Stderr, "linkpath: stopped")
}
