// Package service implements the `service` subcommand: load the YAML
// configuration, start every dispatcher component, and block until a
// termination signal, mirroring birdnet-go's realtime.Command's
// settings-driven startup.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/1Optic/cortex-dispatcher/internal/conf"
	"github.com/1Optic/cortex-dispatcher/internal/logging"
	"github.com/1Optic/cortex-dispatcher/internal/supervisor"
	"github.com/spf13/cobra"
)

// Command builds the `service` subcommand.
func Command() *cobra.Command {
	var configPath string
	var exampleConfig bool

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the dispatcher service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if exampleConfig {
				path := configPath
				if path == "" {
					path = "cortex-dispatcher.yml"
				}
				if err := conf.WriteExample(path); err != nil {
					return fmt.Errorf("writing example config: %w", err)
				}
				fmt.Printf("wrote example configuration to %s\n", path)
				return nil
			}

			settings, err := conf.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			level := slog.LevelInfo
			if settings.Debug {
				level = slog.LevelDebug
			}
			logging.Init(level)
			logging.SetLevel(level)

			if settings.Logging.File != "" {
				fileLogger, closeFile, err := logging.NewFileLogger(
					settings.Logging.File, "dispatcher", logging.Level(),
					logging.FileLoggerConfig{Rotation: logging.Rotation(settings.Logging.Rotation)},
				)
				if err != nil {
					return fmt.Errorf("initializing file logger: %w", err)
				}
				defer closeFile()
				logging.SetBase(fileLogger)
			}

			log := logging.ForComponent("supervisor")

			sup, err := supervisor.New(settings, log)
			if err != nil {
				return fmt.Errorf("initializing supervisor: %w", err)
			}

			return sup.Run(context.Background())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	cmd.Flags().BoolVar(&exampleConfig, "example-config", false, "write an example configuration file and exit")

	return cmd
}
