package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"figurespeaker/internal/ipc"
	"figurespeaker/internal/settings"
)

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	volumeCmd := &cobra.Command{
		Use:   "volume",
		Short: "Change or inspect the player volume",
	}

	for _, direction := range []string{"up", "down"} {
		dir := direction
		volumeCmd.AddCommand(&cobra.Command{
			Use:   dir,
			Short: fmt.Sprintf("Press the volume %s button", dir),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Volume(ipc.VolumeRequest{Direction: dir})
					if err != nil {
						return fmt.Errorf("volume %s: %w", dir, err)
					}
					printVolumeResult(cmd.OutOrStdout(), resp)
					return nil
				})
			},
		})
	}

	var jsonOutput bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the persisted volume bounds and level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := ctx.readVolumeSettings(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, current)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]column{numericColumn("Min"), numericColumn("Max"), numericColumn("Current")},
				[][]string{{strconv.Itoa(current.Min), strconv.Itoa(current.Max), strconv.Itoa(current.Current)}},
			))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print settings as JSON")

	var minValue, maxValue, currentValue int
	setCmd := &cobra.Command{
		Use:   "set [level]",
		Short: "Set the volume level, or update the bounds with --min/--max/--current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			boundsChanged := flags.Changed("min") || flags.Changed("max") || flags.Changed("current")
			if len(args) == 1 {
				if boundsChanged {
					return errors.New("use either a level argument or --min/--max/--current, not both")
				}
				level, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid volume level %q", args[0])
				}
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Volume(ipc.VolumeRequest{Level: &level})
					if err != nil {
						return fmt.Errorf("volume set: %w", err)
					}
					printVolumeResult(cmd.OutOrStdout(), resp)
					return nil
				})
			}
			if !boundsChanged {
				return errors.New("provide a level or at least one of --min, --max, --current")
			}

			next, err := ctx.readVolumeSettings(cmd.Context())
			if err != nil {
				return err
			}
			if flags.Changed("min") {
				next.Min = minValue
			}
			if flags.Changed("max") {
				next.Max = maxValue
			}
			if flags.Changed("current") {
				next.Current = currentValue
			}
			updated, err := ctx.writeVolumeSettings(cmd.Context(), next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Volume settings saved: min %d, max %d, current %d\n", updated.Min, updated.Max, updated.Current)
			return nil
		},
	}
	setCmd.Flags().IntVar(&minValue, "min", 0, "Lowest volume the buttons may reach")
	setCmd.Flags().IntVar(&maxValue, "max", 100, "Highest volume the buttons may reach")
	setCmd.Flags().IntVar(&currentValue, "current", 0, "Current volume level")

	volumeCmd.AddCommand(showCmd, setCmd)
	return volumeCmd
}

func printVolumeResult(out io.Writer, resp *ipc.VolumeResponse) {
	if resp.Changed {
		fmt.Fprintf(out, "Volume %d -> %d\n", resp.Previous, resp.Current)
		return
	}
	reason := resp.Reason
	if reason == "" {
		reason = "unchanged"
	}
	fmt.Fprintf(out, "Volume unchanged (%s)\n", reason)
}

// readVolumeSettings asks the daemon when it is running and reads the
// settings store otherwise.
func (c *commandContext) readVolumeSettings(ctx context.Context) (ipc.VolumeSettings, error) {
	if client, err := ipc.Dial(c.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.VolumeSettings(ipc.VolumeSettingsRequest{})
		if err != nil {
			return ipc.VolumeSettings{}, fmt.Errorf("volume settings: %w", err)
		}
		return resp.Settings, nil
	}
	var out ipc.VolumeSettings
	err := c.withStore(func(store *settings.Store) error {
		current, err := store.VolumeSettings(ctx)
		if err != nil {
			return err
		}
		out = ipc.VolumeSettings{Min: current.Min, Max: current.Max, Current: current.Current}
		return nil
	})
	return out, err
}

// writeVolumeSettings routes through the daemon so a running engine picks up
// the new level.
func (c *commandContext) writeVolumeSettings(ctx context.Context, next ipc.VolumeSettings) (ipc.VolumeSettings, error) {
	if client, err := ipc.Dial(c.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.VolumeSettings(ipc.VolumeSettingsRequest{Update: true, Settings: next})
		if err != nil {
			return ipc.VolumeSettings{}, fmt.Errorf("update volume settings: %w", err)
		}
		return resp.Settings, nil
	}
	err := c.withStore(func(store *settings.Store) error {
		return store.UpdateVolumeSettings(ctx, settings.VolumeSettings{Min: next.Min, Max: next.Max, Current: next.Current})
	})
	if err != nil {
		return ipc.VolumeSettings{}, err
	}
	return next, nil
}
