package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	stylehttp "github.com/fyrsmithlabs/stylefix/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(global *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyze, apply and test-config operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, global, func(a *app) error {
				cfg, err := a.serverConfig(addr)
				if err != nil {
					return err
				}
				analyzer, err := a.analyzer(cmd.Context())
				if err != nil {
					return err
				}
				applier, err := a.applier()
				if err != nil {
					return err
				}
				tester, err := a.tester()
				if err != nil {
					return err
				}

				server, err := stylehttp.NewServer(stylehttp.Services{
					Analyzer: analyzer,
					Applier:  applier,
					Tester:   tester,
				}, a.zap().Named("http"), cfg)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), server, a)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, host:port (overrides server.host and server.port)")
	return cmd
}

func (a *app) serverConfig(addr string) (*stylehttp.Config, error) {
	cfg := &stylehttp.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
	if addr == "" {
		return cfg, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	if cfg.Port, err = strconv.Atoi(port); err != nil || cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid --addr %q: bad port", addr)
	}
	cfg.Host = host
	return cfg, nil
}

// serve runs server until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, server *stylehttp.Server, a *app) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.zap().Warn("http server did not shut down cleanly", zap.Error(err))
		return errors.Join(err, <-errCh)
	}
	return <-errCh
}
