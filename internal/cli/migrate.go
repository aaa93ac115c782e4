package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"directchat/internal/logger"
	"directchat/internal/security"
	"directchat/internal/store"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, closer := logger.New(cfg.LogLevel, cfg.LogSink)
			defer closer.Close()

			enc, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
			if err != nil {
				return fmt.Errorf("init encryptor: %w", err)
			}
			st, err := store.Open(cfg, enc)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations_applied", "driver", st.Driver)
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", st.Driver)
			return nil
		},
	}
}
