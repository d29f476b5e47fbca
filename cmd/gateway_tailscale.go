package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// initTailscale starts a tsnet listener serving mux alongside the gateway's
// normal listener, so an operator can reach the gateway over their tailnet
// without exposing a public port. A blank hostname leaves Tailscale off.
func initTailscale(ctx context.Context, cfg *config.Config, mux http.Handler) func() {
	ts := cfg.Tailscale
	if ts.Hostname == "" {
		return nil
	}

	stateDir := ts.StateDir
	if stateDir == "" {
		confDir, err := os.UserConfigDir()
		if err != nil {
			confDir = os.TempDir()
		}
		stateDir = filepath.Join(confDir, "tsnet-goclaw")
	}

	srv := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   ts.AuthKey,
	}

	var ln net.Listener
	var err error
	if ts.EnableTLS {
		ln, err = srv.ListenTLS("tcp", ":443")
	} else {
		ln, err = srv.Listen("tcp", ":80")
	}
	if err != nil {
		slog.Warn("tailscale: listener failed, running without tsnet", "error", err)
		srv.Close()
		return nil
	}

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && ctx.Err() == nil {
			slog.Warn("tailscale: http server exited", "error", err)
		}
	}()

	slog.Info("tailscale: listening", "hostname", ts.Hostname, "tls", ts.EnableTLS)
	return func() {
		httpSrv.Close()
		srv.Close()
	}
}
