package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"directchat/internal/config"
	"directchat/internal/domain"
	"directchat/internal/httpserver"
	"directchat/internal/janitor"
	"directchat/internal/logger"
	"directchat/internal/natsbus"
	"directchat/internal/security"
	"directchat/internal/store"
	"directchat/internal/ws"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr      string
	NoMigrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, closer := logger.New(cfg.LogLevel, cfg.LogSink)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default HTTP_HOST:HTTP_PORT)")
	cmd.Flags().BoolVar(&opts.NoMigrate, "no-migrate", false, "skip applying the schema at startup")

	return cmd
}

// app is the fully wired server.
type app struct {
	store   *store.Store
	hub     *ws.Hub
	nats    interface{ Close() }
	janitor *janitor.Janitor
	handler http.Handler
}

func (a *app) close() {
	a.hub.Shutdown()
	if a.nats != nil {
		a.nats.Close()
	}
	_ = a.store.Close()
}

func buildApp(cfg *config.Config, migrate bool, log *slog.Logger) (*app, error) {
	enc, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		return nil, fmt.Errorf("init encryptor: %w", err)
	}
	st, err := store.Open(cfg, enc)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := st.Migrate(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	a := &app{store: st, hub: ws.NewHub(log, cfg.WSPingInterval, cfg.WSSendBuffer)}
	sink := domain.Fanout{a.hub}
	if cfg.NATSURL != "" {
		nc, err := natsbus.Connect(cfg.NATSURL, cfg.AppName, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.nats = nc
		sink = append(sink, natsbus.NewTap(nc, cfg.NATSSubjectPrefix, log))
		log.Info("nats_tap_enabled", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
	}

	a.janitor, err = janitor.New(st.Conversations, cfg.JanitorSchedule, log)
	if err != nil {
		a.close()
		return nil, err
	}

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	a.handler = httpserver.NewRouter(cfg, st, a.hub, sink, tokens, hasher, log)
	return a, nil
}

func serve(ctx context.Context, cfg *config.Config, opts *ServeOptions, log *slog.Logger) error {
	a, err := buildApp(cfg, !opts.NoMigrate, log)
	if err != nil {
		return err
	}
	defer a.close()

	addr := opts.Addr
	if addr == "" {
		addr = cfg.HTTPAddr()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go a.janitor.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_starting", "addr", addr, "driver", a.store.Driver, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked sockets are not tracked by Shutdown.
	a.hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
	return nil
}
