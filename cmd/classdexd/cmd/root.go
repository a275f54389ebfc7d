package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openalpha/classdex/api"
	"github.com/openalpha/classdex/config"
	"github.com/openalpha/classdex/session"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCmd creates the root command for classdexd.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "classdexd",
		Short:         "Classroom trading game server",
		Long:          "classdexd runs the classroom trading game: a WebSocket matching server where a teacher opens markets and students trade against each other in real time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "HTTP listen port")
	flags.String("admin-password", config.DefaultAdminPassword, "password required to create games")
	flags.String("cors-origin", "*", "allowed browser origin, * for any")
	flags.String("book-engine", "btree", "order book engine (btree or skiplist)")
	flags.Int64("click-size", 5, "maximum lots taken per click trade")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	_ = v.BindPFlag(config.KeyPort, flags.Lookup("port"))
	_ = v.BindPFlag(config.KeyAdminPassword, flags.Lookup("admin-password"))
	_ = v.BindPFlag(config.KeyCORSOrigin, flags.Lookup("cors-origin"))
	_ = v.BindPFlag(config.KeyBookEngine, flags.Lookup("book-engine"))
	_ = v.BindPFlag(config.KeyClickSize, flags.Lookup("click-size"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the classdexd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "classdexd "+Version)
		},
	}
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	if cfg.AdminPassword == config.DefaultAdminPassword {
		logger.Warn("running with the default admin password, set ADMIN_PASSWORD to change it")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := session.NewRegistry(ctx, cfg.ClickSize, cfg.BookEngine, logger)
	dispatcher := session.NewDispatcher(registry, cfg.AdminPassword, logger)

	apiCfg := api.DefaultConfig()
	apiCfg.Port = cfg.Port
	apiCfg.AllowedOrigin = cfg.CORSOrigin

	server := api.NewServer(apiCfg, registry, dispatcher, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("classdexd started",
		"version", Version,
		"port", cfg.Port,
		"book_engine", cfg.BookEngine,
		"click_size", cfg.ClickSize,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	// Stop the session workers, then drain HTTP connections.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(level string) log.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return log.NewLogger(os.Stderr, log.LevelOption(lvl))
}
