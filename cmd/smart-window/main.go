package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/awaistahir/smart-window/internal/app"
	"github.com/awaistahir/smart-window/internal/config"
	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-window",
		Short: "SmartWindow - pick the cheapest hours from day-ahead energy prices",
		Long: `SmartWindow selects the cheapest (or most expensive) hours of the next
day from Nord Pool or Entso-e prices published in Home Assistant.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			appHandle, err = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.smartwindow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level defined in config")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fetchCmd() *cobra.Command {
	var sensor string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch today's and tomorrow's prices of a sensor and cache them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return appHandle.Fetch(cmd.Context(), sensor, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&sensor, "sensor", "s", "", "sensor unique id")
	cmd.MarkFlagRequired("sensor")
	return cmd
}

func selectCmd() *cobra.Command {
	var sensor, date string

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Run the selection on cached prices without changing sensor state",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.SelectOptions{Sensor: sensor}
			if date != "" && date != "today" {
				day, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
				}
				opts.Date = engine.DateOf(day)
			}
			return appHandle.Select(cmd.Context(), opts, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&sensor, "sensor", "s", "", "sensor unique id")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "day the prices were fetched on (YYYY-MM-DD or 'today')")
	cmd.MarkFlagRequired("sensor")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [sensor]",
		Short: "Show persisted sensor records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sensor string
			if len(args) == 1 {
				sensor = args[0]
			}
			return appHandle.Show(cmd.Context(), sensor, os.Stdout)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [sensor]",
		Short: "Show whether each sensor is on right now and in which mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sensor string
			if len(args) == 1 {
				sensor = args[0]
			}
			return appHandle.Status(cmd.Context(), sensor, os.Stdout)
		},
	}
}

func clearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [sensor]",
		Short: "Clear the persisted record of a sensor, or all records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.ClearOptions{All: all}
			if len(args) == 1 {
				opts.Sensor = args[0]
			}
			if err := appHandle.Clear(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Println("✓ Cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear every sensor")
	return cmd
}
