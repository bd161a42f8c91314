package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hb-go/internal/app"
	"hb-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from its default location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an HBApp. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.HBApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level, err := app.GetLogLevel()
	if err != nil {
		return nil, err
	}

	var password string
	if prompt, _ := cmd.Flags().GetBool("password"); prompt {
		password, err = promptPassword(os.Stdin, os.Stderr, "Password: ")
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
	}

	a, err := app.NewHBApp(cmd.Context(), cfg, password, level)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "hb",
	Short:        "PostgreSQL hot backup controller",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the server version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		v, err := a.ServerVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("querying server version: %w", err)
		}

		fmt.Println(v)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run a hot backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		// The session must still close after an interrupt.
		defer a.Close(context.Background())

		result, err := a.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup %s complete\n", result.ID)
		fmt.Printf("Start: %s offset %s\n", result.Start.FileName, result.Start.FileOffset)
		fmt.Printf("Stop:  %s offset %s\n", result.Stop.FileName, result.Stop.FileOffset)
		fmt.Printf("Files: %s\n", a.BackupPath(result.Directory))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backups, err := app.History(cfg, limit)
		if err != nil {
			return err
		}

		if len(backups) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}

		for _, b := range backups {
			duration := ""
			if b.FinishedAt.Valid {
				d := b.FinishedAt.Time.Sub(b.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %-8s  %-40s  %s\n",
				b.ID,
				b.StartedAt.Local().Format("2006-01-02 15:04:05"),
				b.Status,
				b.Directory,
				duration,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of backups to show")

	rootCmd.PersistentFlags().Bool("password", false, "Prompt for the database password")
}
