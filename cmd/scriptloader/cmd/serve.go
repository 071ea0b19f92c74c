package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/scriptloader/devserver"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		addr     string
		fallback bool
	)

	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve a script directory over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			serverCfg := devserver.DefaultConfig(args[0])
			serverCfg.Addr = addr
			serverCfg.FallbackToSource = fallback
			srv, err := devserver.New(serverCfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bound, err := srv.Listen()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", args[0], bound)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8087", "listen address")
	cmd.Flags().BoolVar(&fallback, "fallback", true, "serve name.js when name.min.js is missing")
	return cmd
}
