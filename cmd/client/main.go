// Package main is the entry point for the local-role relay: it exposes a
// SOCKS5 endpoint on loopback and forwards client traffic to a pool of
// shadowsocks-style backend servers.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordafarid/shadowrelay/internal/config"
	"github.com/gordafarid/shadowrelay/internal/flags"
	"github.com/gordafarid/shadowrelay/internal/logger"
	"github.com/gordafarid/shadowrelay/internal/plugin"
	"github.com/gordafarid/shadowrelay/internal/relay"
	"github.com/gordafarid/shadowrelay/internal/resolver"
)

func main() {
	if level, ok := logger.ParseLevel(flags.LogLevelFlag); ok {
		logger.SetLevel(level)
	}

	cfg := config.MustLoad(flags.CfgPathFlag)
	if cfg.Local == "" {
		logger.Fatal("local role requires a local listen address (local = \"host:port\") in the config file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var supervisor plugin.Supervisor
	startPlugins(ctx, cfg, &supervisor)
	defer supervisor.StopAll()

	res := resolver.New(nil, cfg.DNSPoolSize)

	var udpLocal *relay.UDPLocal
	var udpAddr net.Addr
	if cfg.UDPEnabled() {
		udpLocal = relay.NewUDPLocal(cfg, res)
		addr, err := udpLocal.Listen()
		if err != nil {
			logger.Fatal("bind UDP relay socket: ", err)
		}
		logger.Info("local UDP relay listening on: ", addr)
		udpAddr = addr
	}

	local := relay.NewLocal(cfg, res, udpAddr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("received ", s, ", shutting down")
		cancel()
	}()

	errc := make(chan error, 2)
	if cfg.TCPEnabled() {
		go func() {
			logger.Info("local SOCKS5 endpoint listening on: ", cfg.Local)
			errc <- local.Serve(ctx)
		}()
	}
	if udpLocal != nil {
		go func() { errc <- udpLocal.Serve(ctx) }()
	}

	for err := range errc {
		if err != nil && ctx.Err() == nil {
			logger.Error("relay stopped: ", err)
			cancel()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// startPlugins launches every configured server's SIP003 plugin, if any,
// and overrides that ServerConfig's address in place with the plugin's
// local endpoint, per the external plugin interface this relay consumes.
func startPlugins(ctx context.Context, cfg *config.Config, supervisor *plugin.Supervisor) {
	for i := range cfg.Servers {
		sc := &cfg.Servers[i]
		if !sc.HasPlugin() {
			continue
		}
		proc, err := plugin.Start(ctx, plugin.Config{Path: sc.Plugin.Path, Opts: sc.Plugin.Opts}, sc.Address)
		if err != nil {
			logger.Fatal("start plugin for server ", sc.Address, ": ", err)
		}
		supervisor.Track(proc)
		sc.Address = proc.LocalAddr
	}
}
