package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"figurespeaker/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var grep string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log for the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines < 0 {
				return errors.New("--lines must not be negative")
			}
			path := cfg.CurrentLogPath()
			out := cmd.OutOrStdout()
			match := func(line string) bool {
				return grep == "" || strings.Contains(line, grep)
			}

			tail, pos, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 && pos.File == "" && !follow {
				fmt.Fprintf(out, "No log at %s (has the daemon run yet?)\n", path)
				return nil
			}
			for _, line := range tail {
				if match(line) {
					fmt.Fprintln(out, line)
				}
			}
			if !follow {
				return nil
			}

			err = logs.Follow(cmd.Context(), path, pos, 250*time.Millisecond, func(line string) {
				if match(line) {
					fmt.Fprintln(out, line)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&grep, "grep", "", "Only print lines containing this text")
	return cmd
}
