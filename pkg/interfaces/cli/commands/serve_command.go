package commands

import (
	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/interfaces/api"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.openRuntime(cmd, "")
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.Config
			if addr == "" {
				addr = cfg.HTTP.Addr
			}
			router := api.NewRouter(rt.Orchestrator, rt.Logger, api.Options{
				RateLimit: cfg.HTTP.RateLimit,
				Burst:     cfg.HTTP.Burst,
			})
			rt.Logger.Info("starting server", "addr", addr, "storage", cfg.Storage.Driver)
			return api.Serve(cmd.Context(), addr, router, rt.Logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}
