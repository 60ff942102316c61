package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"botkit/internal/config"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "botkit",
		Short: "botkit: conversational bot framework",
		Long:  "botkit dispatches chat messages from Telegram, Slack, Discord, web and terminal clients through pattern-matched routes and resumable conversations.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.botkit/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := resolveConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfg, cfgPath); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "state", cfg.Storage.Path)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("botkit", version)
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Verify driver credentials and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			drivers, _ := buildDrivers(cfg, logger)
			fmt.Println("Drivers:")
			for _, st := range drivers.VerifyServices() {
				state := "ok"
				if !st.Configured {
					state = "not configured"
				}
				fmt.Printf("  %-10s %s\n", st.Name, state)
			}

			store, closeStore, err := buildStorage(cfg, logger)
			if err != nil {
				fmt.Printf("Storage:   %s (%v)\n", cfg.Storage.Backend, err)
				return nil
			}
			defer closeStore()
			probe := "botkit-doctor-probe"
			if err := store.Put(probe, []byte("ok"), 0); err != nil {
				fmt.Printf("Storage:   %s (write failed: %v)\n", cfg.Storage.Backend, err)
				return nil
			}
			store.Pull(probe)
			fmt.Printf("Storage:   %s ok\n", cfg.Storage.Backend)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. storage.backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(val, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. storage.backend sqlite)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("cannot load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (credentials masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			out, err := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
