package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/knrv/webpilot/internal/config"
	"github.com/knrv/webpilot/internal/observability"
	"github.com/knrv/webpilot/internal/service"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service exposing POST /interact",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("service.addr", cmd.Flags().Lookup("addr"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			// Flags were bound after the persistent config load, so
			// refresh to pick up the overrides.
			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			appConfig = cfg

			driver, cleanup, err := buildDriver(appConfig, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			server := service.NewServer(driver, appConfig.Service, logger)

			// cmd.Context() is signal-aware; Ctrl-C drains in-flight
			// runs before exit.
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return server.ListenAndServe(ctx)
			})
			return g.Wait()
		},
	}

	serveCmd.Flags().String("addr", "", "listen address (overrides service.addr)")
	return serveCmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
