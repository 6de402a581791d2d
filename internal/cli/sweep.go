package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/timekeep/internal/engine"
)

// SweepReport is the combined output of one sweep and nudge pass.
type SweepReport struct {
	Sweep *engine.SweepReport `json:"sweep"`
	Nudge *engine.NudgeReport `json:"nudge"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var skipNudge bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one recovery sweep and nudge pass",
		Long: `Run the background jobs once: repair timers whose callbacks were lost
or delayed, then nudge users with long-running timers.

Useful from cron when the service is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ctx := cmd.Context()
				report := SweepReport{}
				var err error
				if report.Sweep, err = a.engine.Sweep(ctx); err != nil {
					return a.out.Fail("sweep failed", err)
				}
				text := fmt.Sprintf("Sweep: examined %d, stale %d, grace expired %d, interrupts %d, transitions %d",
					report.Sweep.Examined, report.Sweep.Stale, report.Sweep.GraceExpire,
					report.Sweep.Interrupts, report.Sweep.Transitions)
				if !skipNudge {
					if report.Nudge, err = a.engine.Nudge(ctx); err != nil {
						return a.out.Fail("nudge failed", err)
					}
					text += fmt.Sprintf("\nNudge: examined %d, nudged %d", report.Nudge.Examined, report.Nudge.Nudged)
				}
				return a.out.Success(report, text)
			})
		},
	}

	cmd.Flags().BoolVar(&skipNudge, "no-nudge", false, "skip the nudge pass")

	return cmd
}
