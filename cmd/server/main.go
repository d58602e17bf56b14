// Package main is the entry point for the server role: it runs one
// acceptor loop per configured backend, decrypting inbound shadowsocks-style
// connections and relaying plaintext to the real destination.
package main

import (
	"context"
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

	forbidden, err := config.NewForbiddenSet(cfg.ForbiddenIPs)
	if err != nil {
		logger.Fatal("parse forbiddenIPs: ", err)
	}
	res := resolver.New(forbidden, cfg.DNSPoolSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var supervisor plugin.Supervisor
	startPlugins(ctx, cfg, &supervisor)
	defer supervisor.StopAll()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("received ", s, ", shutting down")
		cancel()
	}()

	// One TCP acceptor, and optionally one UDP acceptor, per configured
	// server: each ServerConfig is a fully independent listen address run
	// in parallel with the others.
	errc := make(chan error, 2*len(cfg.Servers))
	for i := range cfg.Servers {
		sc := cfg.Servers[i]

		if cfg.TCPEnabled() {
			srv := relay.NewServer(cfg, sc, res, sc.ConnTimeout(cfg))
			go func() {
				logger.Info("server TCP endpoint listening on: ", sc.Address)
				errc <- srv.Serve(ctx)
			}()
		}
		if cfg.UDPEnabled() {
			udpSrv := relay.NewUDPServer(sc, res, cfg.UDPTimeoutDuration())
			go func() {
				logger.Info("server UDP endpoint listening on: ", sc.Address)
				errc <- udpSrv.Serve(ctx)
			}()
		}
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
// local endpoint, mirroring the local role's own plugin wiring.
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
