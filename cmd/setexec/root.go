package main

import (
	"setexec/pkg/config"
	"setexec/pkg/logging"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "setexec",
		Short:         "Run UNION, INTERSECT and EXCEPT over row sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "TOML configuration file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newRunCommand(g), newConfigCommand(g))
	return cmd
}

// loadConfig reads the configuration file, if any, and sets up logging
// from it.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	if g.logLevel != "" {
		cfg.Logging.Level = logging.LogLevel(g.logLevel)
	}
	return cfg, nil
}

func newConfigCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}
