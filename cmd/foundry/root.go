package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkg.world.dev/world-engine/foundry"
	"pkg.world.dev/world-engine/foundry/config"
	flog "pkg.world.dev/world-engine/foundry/log"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/observer"
	"pkg.world.dev/world-engine/foundry/recycler"
	"pkg.world.dev/world-engine/foundry/registry"
)

// NewRootCmd returns the foundry command. The configuration flags are shared by every subcommand
// and take precedence over the environment and the config file.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "foundry",
		Short:         "Authoritative machine world server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if err := config.BindFlags(rootCmd.PersistentFlags(), viper.GetViper()); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		NewStartCmd(),
		NewObserveCmd(),
		NewCatalogCmd(),
	)
	return rootCmd
}

func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Load the stored machines and run the world",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := foundry.New()
			if err != nil {
				return err
			}
			return f.Start()
		},
	}
}

func NewObserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "observe",
		Short: "Mirror the machines of an authoritative foundry",
		Long: "Mirror the machines of the foundry at --upstream. Snapshots are read from its " +
			"websocket stream, or from NATS when --sync-nats is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := flog.Configure(&log.Logger, cfg.LogLevel, cfg.LogPretty); err != nil {
				return eris.Wrap(err, "failed to configure logger")
			}

			catalog, err := registry.LoadCatalog(cfg.CatalogPath)
			if err != nil {
				return err
			}
			reg := registry.New(catalog)
			blueprints := machine.NewBlueprints()
			if err := recycler.Register(blueprints, reg, reg); err != nil {
				return err
			}

			var source observer.Source = observer.WebSocketSource{
				URL:    "ws://" + cfg.UpstreamURL + "/events",
				Logger: log.Logger,
			}
			if cfg.SyncNATS {
				client, err := netsync.NewClient()
				if err != nil {
					return err
				}
				defer client.Close()
				source = observer.NATSSource{Conn: client.Conn, Namespace: cfg.Namespace, Logger: log.Logger}
			}

			o, err := observer.New(blueprints, reg, source, "http://"+cfg.UpstreamURL,
				observer.WithTickRate(cfg.TickRate),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return o.Run(ctx)
		},
	}
}

func NewCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Item catalog subcommands",
	}
	catalogCmd.AddCommand(
		&cobra.Command{
			Use:     "validate [path]",
			Short:   "Check a catalog file against the catalog schema and its own references",
			Example: "foundry catalog validate items.yaml",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				catalog, err := registry.LoadCatalog(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s: %d items, %d recipes\n", args[0], len(catalog.Items), len(catalog.Recipes))
				return nil
			},
		},
		&cobra.Command{
			Use:     "matter [path]",
			Short:   "Print the matter table derived from a catalog, the built-in one when path is omitted",
			Example: "foundry catalog matter items.yaml",
			Args:    cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := ""
				if len(args) == 1 {
					path = args[0]
				}
				catalog, err := registry.LoadCatalog(path)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return eris.Wrap(enc.Encode(registry.New(catalog).Calculate()), "failed to encode matter table")
			},
		},
	)
	return catalogCmd
}
