package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/ai/router"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/internal/version"
	"github.com/anthonyhu/aidocs/server"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "aidocs",
	Short: `Converse with a language model and synthesize persisted documents from the transcript.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is a convenience for direct binary execution; service managers
		// inject environment themselves.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid profile", "error", err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err, "driver", instanceProfile.Driver)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		defer storeInstance.Close()
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		exporter := metrics.NewExporter()

		selector := router.NewSelector(storeInstance, exporter, 1)
		if err := selector.Init(ctx); err != nil {
			slog.Error("failed to initialize model selector", "error", err)
			return
		}
		if err := selector.Start(ctx); err != nil {
			slog.Warn("settings watcher unavailable, selection is static", "error", err)
		}

		if cfg := selector.LLMConfig(instanceProfile); cfg.Model != "" && cfg.APIKey != "" {
			if svc, err := llm.NewService(cfg); err == nil {
				go svc.Warmup(ctx)
			}
		}

		s := server.NewServer(instanceProfile, storeInstance, exporter, selector)

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers (systemd, kubernetes).
		signal.Notify(c, terminationSignals...)
		go func() {
			sig := <-c
			slog.Info("shutting down", "signal", sig.String())
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil {
			slog.Error("server stopped with error", "error", err)
		}
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("aidocs")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("aidocs %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}

	if !profile.IsAIEnabled() {
		fmt.Fprintln(os.Stderr, "No generation API key configured; set AIDOCS_LLM_API_KEY or a router config setting")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
