package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"figurespeaker/internal/ipc"
)

func newEngineCommand(ctx *commandContext) *cobra.Command {
	engineCmd := &cobra.Command{
		Use:   "engine",
		Short: "Control the supervised playback engine",
	}
	for _, def := range []struct {
		action string
		short  string
	}{
		{"start", "Start the engine and wait for it to report readiness"},
		{"stop", "Stop the engine process"},
		{"restart", "Stop the engine, then start it again"},
	} {
		action := def.action
		engineCmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: def.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Engine(action)
					if err != nil {
						return fmt.Errorf("engine %s: %w", action, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), describeEngine(resp.Engine))
					return nil
				})
			},
		})
	}
	return engineCmd
}

func describeEngine(engine ipc.EngineStatus) string {
	label := stateLabel(engine.State)
	if engine.PID > 0 {
		return fmt.Sprintf("Engine %s (%s, pid %d)", label, engine.Binary, engine.PID)
	}
	return fmt.Sprintf("Engine %s", label)
}
