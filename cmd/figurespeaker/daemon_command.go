package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"figurespeaker/internal/daemonrun"
	"figurespeaker/internal/logging"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the figurespeaker daemon in the foreground (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if level := strings.TrimSpace(logLevel); level != "" {
				if _, err := logging.ParseLevel(level); err != nil {
					return fmt.Errorf("--log-level: %w", err)
				}
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Enable development logging output")
	return cmd
}
