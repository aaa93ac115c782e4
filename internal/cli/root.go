package cli

import (
	"os"

	"github.com/spf13/cobra"

	"directchat/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// NewRootCommand creates the root command for the directchat binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "directchat",
		Short: "directchat - one-to-one messaging server",
		Long: `Direct messaging backend with message requests, delivery receipts,
polls and live presence over WebSocket.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// loadConfig applies the global flags on top of config.Load.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.ConfigFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}
