package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
)

// withDeps builds deps for a one-shot command and tears them down after fn.
func withDeps(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := buildDeps(ctx, flags)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

func NewLevelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "levels <mystery-id>",
		Short: "List the levels of a mystery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				levels, err := d.service.Levels(ctx, d.token, args[0])
				if err != nil {
					return err
				}
				printLevels(cmd.OutOrStdout(), levels)
				return nil
			})
		},
	}
}

func printLevels(w io.Writer, levels []domain.Level) {
	sum := app.Summarize(levels)
	fmt.Fprintf(w, "Progress: %d/%d levels (%s)\n", sum.Completed, sum.Total, sum.FormatPercent())
	if sum.CurrentQuest != nil {
		fmt.Fprintf(w, "Current quest: %s\n", sum.CurrentQuest.Quest)
	}
	for _, l := range levels {
		status := "locked"
		switch {
		case l.IsCompleted:
			status = "completed"
		case l.IsUnlocked:
			status = "open"
		}
		fmt.Fprintf(w, "  %-10s %-24s %-9s %s\n", l.ID, l.Name, status, l.Stars())
	}
}

func NewProgressCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <mystery-id>",
		Short: "Show your progress in a mystery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				p, err := d.service.Progress(ctx, d.token, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Completed levels: %v\n", p.CompletedLevels)
				fmt.Fprintf(w, "Unlocked levels:  %v\n", p.UnlockedLevels)
				fmt.Fprintf(w, "Total attempts:   %d\n", p.TotalAttempts)
				fmt.Fprintf(w, "Presents:         %d\n", len(p.CollectedPresents))
				return nil
			})
		},
	}
}

func NewMysteriesCmd(flags *rootFlags) *cobra.Command {
	var joined bool
	cmd := &cobra.Command{
		Use:   "mysteries",
		Short: "List available or joined mysteries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				mysteries, err := d.service.Mysteries(ctx, d.token, joined)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(mysteries) == 0 {
					fmt.Fprintln(w, "No mysteries found.")
				}
				for _, m := range mysteries {
					fmt.Fprintf(w, "  %-4d %s\n", m.ID, m.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&joined, "joined", false, "list mysteries you have joined")
	return cmd
}

func NewJoinCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <mystery-id> <pin>",
		Short: "Join a mystery with its pin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("mystery id: %w", err)
			}
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				msg, err := d.service.Join(ctx, d.token, domain.JoinRequest{MysteryID: id, Pin: args[1]})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func NewPresentsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "presents",
		Short: "List collected presents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				presents, err := d.service.CollectedPresents(ctx, d.token)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, p := range presents {
					fmt.Fprintf(w, "  [%s] %s: %s\n", p.Type, p.Title, presentBody(p))
				}
				return nil
			})
		},
	}
}

func presentBody(p domain.Present) string {
	if ref := p.AssetRef(); ref != "" {
		return ref
	}
	return p.Content
}
