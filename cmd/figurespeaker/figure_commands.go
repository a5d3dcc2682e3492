package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"figurespeaker/internal/config"
	"figurespeaker/internal/settings"
)

func newFigureCommand(ctx *commandContext) *cobra.Command {
	figureCmd := &cobra.Command{
		Use:     "figure",
		Aliases: []string{"figures"},
		Short:   "Manage figure tag to media URI mappings",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *settings.Store) error {
				figs, err := store.ListFigures(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, figs)
				}
				out := cmd.OutOrStdout()
				if len(figs) == 0 {
					fmt.Fprintln(out, "No figures registered")
					return nil
				}
				fmt.Fprint(out, renderTable([]column{
					textColumn("Tag"),
					textColumn("Name"),
					uriColumn("URI"),
					textColumn("Mode"),
					numericColumn("Progress"),
					textColumn("Last Played"),
				}, figureRows(figs)))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print figures as JSON")

	var name, mode string
	addCmd := &cobra.Command{
		Use:   "add <tag> <uri>",
		Short: "Register or update a figure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playMode := strings.ToUpper(strings.TrimSpace(mode))
			switch playMode {
			case "", config.PlayModeResume, config.PlayModeReset:
			default:
				return fmt.Errorf("--mode: unsupported value %q (want %s or %s)", mode, config.PlayModeResume, config.PlayModeReset)
			}
			return ctx.withStore(func(store *settings.Store) error {
				fig := settings.Figure{Tag: args[0], URI: args[1], Name: name, PlayMode: playMode}
				if err := store.UpsertFigure(cmd.Context(), fig); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Figure %s -> %s saved\n", strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Display name for the figure")
	addCmd.Flags().StringVar(&mode, "mode", "", "Play mode override (RESUME or RESET); empty uses player.default_play_mode")

	removeCmd := &cobra.Command{
		Use:     "remove <tag>",
		Aliases: []string{"rm"},
		Short:   "Remove a figure",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *settings.Store) error {
				removed, err := store.DeleteFigure(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !removed {
					fmt.Fprintf(out, "Figure %s not found\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Figure %s removed\n", args[0])
				return nil
			})
		},
	}

	figureCmd.AddCommand(listCmd, addCmd, removeCmd)
	return figureCmd
}

func figureRows(figs []*settings.Figure) [][]string {
	rows := make([][]string, 0, len(figs))
	for _, fig := range figs {
		mode := fig.PlayMode
		if mode == "" {
			mode = "default"
		}
		lastPlayed := "never"
		if fig.LastPlayedAt != nil {
			lastPlayed = fig.LastPlayedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			fig.Tag,
			fig.Name,
			fig.URI,
			mode,
			formatPosition(fig.Progress.Milliseconds()),
			lastPlayed,
		})
	}
	return rows
}
