package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// NewEntryCommand creates the entry command and its subcommands.
func NewEntryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Record and list time entries",
	}

	cmd.AddCommand(newEntryAddCommand(rootOpts))
	cmd.AddCommand(newEntryListCommand(rootOpts))

	return cmd
}

func newEntryAddCommand(opts *RootOptions) *cobra.Command {
	var (
		in       engine.ManualEntryInput
		start    string
		stop     string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record time tracked outside the timer",
		Long: `Record a closed manual entry in the user's active context.

The range is given by --start and either --stop or --duration.

Example:
  timekeep entry add --user u1 --project p1 --start 2026-03-02T09:00:00Z --duration 90m
  timekeep entry add --user u1 --project p1 --start 2026-03-02T09:00:00Z --stop 2026-03-02T10:00:00Z --note "review"`,
		Args: cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			var err error
			if in.StartedAt, err = time.Parse(time.RFC3339, start); err != nil {
				return WrapExitError(ExitCommandError, "invalid --start", err)
			}
			switch {
			case stop != "" && duration != 0:
				return NewExitError(ExitCommandError, "--stop and --duration are mutually exclusive")
			case stop != "":
				if in.StoppedAt, err = time.Parse(time.RFC3339, stop); err != nil {
					return WrapExitError(ExitCommandError, "invalid --stop", err)
				}
			case duration != 0:
				in.StoppedAt = in.StartedAt.Add(duration)
			default:
				return NewExitError(ExitCommandError, "one of --stop or --duration is required")
			}

			entry, err := a.engine.CreateManualEntry(cmd.Context(), user, in)
			if err != nil {
				return a.out.Fail("entry failed", err)
			}
			return a.out.Success(entry, fmt.Sprintf("Recorded %s on %s as %s", formatSeconds(*entry.Seconds), entry.ProjectID, entry.ID))
		}),
	}

	cmd.Flags().StringVarP(&in.ProjectID, "project", "p", "", "project id (required)")
	cmd.Flags().StringVar(&start, "start", "", "start time, RFC 3339 (required)")
	cmd.Flags().StringVar(&stop, "stop", "", "stop time, RFC 3339")
	cmd.Flags().DurationVar(&duration, "duration", 0, "entry length, instead of --stop")
	cmd.Flags().StringVar(&in.Note, "note", "", "free-text note")
	cmd.Flags().StringVar(&in.Category, "category", "", "category label")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func newEntryListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's entries, newest first",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			ctx := cmd.Context()
			var entries []*model.TimeEntry
			err := a.store.InTx(ctx, func(tx *store.Tx) error {
				var err error
				entries, err = tx.ListEntries(ctx, user, limit)
				return err
			})
			if err != nil {
				return a.out.Fail("list failed", err)
			}

			var b strings.Builder
			if len(entries) == 0 {
				b.WriteString("No entries")
			}
			for i, e := range entries {
				if i > 0 {
					b.WriteByte('\n')
				}
				length := "running"
				if e.Seconds != nil {
					length = formatSeconds(*e.Seconds)
				}
				fmt.Fprintf(&b, "%s  %s  %-10s %-8s %s", e.ID, formatTime(e.StartedAt), e.ProjectID, e.Source, length)
			}
			return a.out.Success(entries, b.String())
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")

	return cmd
}
