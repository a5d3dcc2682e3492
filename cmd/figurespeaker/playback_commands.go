package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"figurespeaker/internal/ipc"
)

func newPlaybackCommands(ctx *commandContext) []*cobra.Command {
	var uri string
	var position time.Duration
	playCmd := &cobra.Command{
		Use:   "play [tag]",
		Short: "Play a registered figure tag or a media URI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri = strings.TrimSpace(uri)
			tag := ""
			if len(args) == 1 {
				tag = strings.TrimSpace(args[0])
			}
			if (tag == "") == (uri == "") {
				return errors.New("provide either a tag argument or --uri")
			}
			if position < 0 {
				return errors.New("--position must not be negative")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var (
					resp *ipc.PlayResponse
					err  error
				)
				if tag != "" {
					resp, err = client.PlayTag(tag)
				} else {
					resp, err = client.PlayURI(uri, position)
				}
				if err != nil {
					return fmt.Errorf("play: %w", err)
				}
				out := cmd.OutOrStdout()
				if !resp.Played || resp.Request == nil {
					fmt.Fprintf(out, "Tag %s is not registered (add it with `figurespeaker figure add`)\n", tag)
					return nil
				}
				fmt.Fprintf(out, "Playing %s", resp.Request.URI)
				if resp.Request.PositionMS > 0 {
					fmt.Fprintf(out, " from %s", formatPosition(resp.Request.PositionMS))
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	playCmd.Flags().StringVar(&uri, "uri", "", "Media URI to play instead of a tag")
	playCmd.Flags().DurationVar(&position, "position", 0, "Start position for --uri (for example 1m30s)")

	buttons := []struct {
		use    string
		short  string
		action string
	}{
		{"pause", "Toggle between playing and paused", "toggle"},
		{"forwards", "Skip forwards by the wind interval", "forwards"},
		{"rewind", "Skip backwards by the wind interval", "rewind"},
		{"halt", "Stop playback and save progress", "stop"},
	}
	cmds := []*cobra.Command{playCmd}
	for _, button := range buttons {
		action := button.action
		cmds = append(cmds, &cobra.Command{
			Use:   button.use,
			Short: button.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Playback(ipc.PlaybackRequest{Action: action})
					if err != nil {
						return fmt.Errorf("%s: %w", action, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), describePlayback(resp.Playback))
					return nil
				})
			},
		})
	}
	return cmds
}

func describePlayback(playback ipc.PlaybackStatus) string {
	if !playback.Available {
		return "No engine session; nothing to control"
	}
	return fmt.Sprintf("%s at %s", stateLabel(playback.State), formatPosition(playback.PositionMS))
}
