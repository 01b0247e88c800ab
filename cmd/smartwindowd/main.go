package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/awaistahir/smart-window/internal/app"
	"github.com/awaistahir/smart-window/internal/config"
	"github.com/awaistahir/smart-window/internal/logging"
	"github.com/awaistahir/smart-window/internal/uiapi"
)

var version = "dev"

func main() {
	var cfgFile, addr, dbPath, logLevel string

	rootCmd := &cobra.Command{
		Use:          "smartwindowd",
		Short:        "SmartWindow service with HTTP API",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if dbPath != "" {
				cfg.Storage.Path = dbPath
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			uiapi.Version = version

			a, err := app.NewApp(cfg, logging.NewLogger(cfg.Logging))
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides http.addr")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path, overrides storage.path")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override log level defined in config")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
