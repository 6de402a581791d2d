package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
)

// NewTimerCommand creates the timer command and its subcommands.
func NewTimerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Start, stop and inspect the running timer",
		Long: `Operate on the running timer of --user in their active context.

Example:
  timekeep timer start --user u1 --project p1
  timekeep timer ack --user u1 --continue=false
  timekeep timer status --user u1 --format json`,
	}

	cmd.AddCommand(newTimerStartCommand(rootOpts))
	cmd.AddCommand(newTimerStopCommand(rootOpts))
	cmd.AddCommand(newTimerResetCommand(rootOpts))
	cmd.AddCommand(newTimerHeartbeatCommand(rootOpts))
	cmd.AddCommand(newTimerInterruptCommand(rootOpts))
	cmd.AddCommand(newTimerAckCommand(rootOpts))
	cmd.AddCommand(newTimerStatusCommand(rootOpts))

	return cmd
}

// userAction wraps a command body that needs --user and an open app.
func userAction(opts *RootOptions, fn func(cmd *cobra.Command, a *app, user string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(opts)
		if err != nil {
			return err
		}
		return withApp(opts, cmd, func(a *app) error {
			return fn(cmd, a, user)
		})
	}
}

func newTimerStartCommand(opts *RootOptions) *cobra.Command {
	var (
		in       engine.StartInput
		pomodoro bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a timer on a project",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			if cmd.Flags().Changed("pomodoro") {
				in.Pomodoro = &pomodoro
			}
			res, err := a.engine.Start(cmd.Context(), user, in)
			if err != nil {
				return a.out.Fail("start failed", err)
			}
			text := fmt.Sprintf("Started timer %s on %s (%s)", res.TimerID, in.ProjectID, res.Context)
			if len(res.Replaced) > 0 {
				text += fmt.Sprintf("\nStopped %s", strings.Join(res.Replaced, ", "))
			}
			if res.NextInterruptAt != nil {
				text += "\nNext check at " + formatTime(*res.NextInterruptAt)
			}
			if res.PomodoroTransitionAt != nil {
				text += "\nBreak at " + formatTime(*res.PomodoroTransitionAt)
			}
			return a.out.Success(res, text)
		}),
	}

	cmd.Flags().StringVarP(&in.ProjectID, "project", "p", "", "project id (required)")
	cmd.Flags().StringVar(&in.Category, "category", "", "category label")
	cmd.Flags().BoolVar(&pomodoro, "pomodoro", false, "run in Pomodoro mode (defaults to the user's setting)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func newTimerStopCommand(opts *RootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running timer and close its entry",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			res, err := a.engine.Stop(cmd.Context(), user, model.Source(source))
			if err != nil {
				return a.out.Fail("stop failed", err)
			}
			return a.out.Success(res, describeStop("Stopped", res))
		}),
	}

	cmd.Flags().StringVar(&source, "source", string(model.SourceTimer), "entry source (timer|manual|autoStop|pomodoroBreak)")

	return cmd
}

func newTimerResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the running timer and its open entry",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			res, err := a.engine.Reset(cmd.Context(), user)
			if err != nil {
				return a.out.Fail("reset failed", err)
			}
			if !res.Success {
				return a.out.Success(res, noopText(res.Outcome))
			}
			return a.out.Success(res, "Reset timer "+res.TimerID)
		}),
	}
}

func newTimerHeartbeatCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Report that the client is still alive",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			res, err := a.engine.Heartbeat(cmd.Context(), user)
			if err != nil {
				return a.out.Fail("heartbeat failed", err)
			}
			if !res.Success {
				return a.out.Success(res, noopText(res.Outcome))
			}
			text := "Heartbeat recorded for " + res.TimerID
			for _, t := range res.Alerts {
				text += "\nAlert: " + string(t)
			}
			return a.out.Success(res, text)
		}),
	}
}

func newTimerInterruptCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt",
		Short: "Ask the user to confirm they are still working",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			res, err := a.engine.RequestInterrupt(cmd.Context(), user)
			if err != nil {
				return a.out.Fail("interrupt failed", err)
			}
			if !res.Success {
				return a.out.Success(res, noopText(res.Outcome))
			}
			text := fmt.Sprintf("Interrupt %s for %s", res.Action, res.TimerID)
			if res.AutoStopAt != nil {
				text += "\nAuto-stop at " + formatTime(*res.AutoStopAt)
			}
			return a.out.Success(res, text)
		}),
	}
}

func newTimerAckCommand(opts *RootOptions) *cobra.Command {
	var cont bool
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Answer a pending interrupt",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			res, err := a.engine.AckInterrupt(cmd.Context(), user, cont)
			if err != nil {
				return a.out.Fail("ack failed", err)
			}
			if !res.Success {
				return a.out.Success(res, noopText(res.Outcome))
			}
			text := fmt.Sprintf("Timer %s %s", res.TimerID, res.Action)
			if res.NextInterruptAt != nil {
				text += "\nNext check at " + formatTime(*res.NextInterruptAt)
			}
			if res.Action == engine.ActionStopped {
				text += fmt.Sprintf("\nRecorded %s", formatSeconds(res.Seconds))
			}
			return a.out.Success(res, text)
		}),
	}

	cmd.Flags().BoolVar(&cont, "continue", true, "keep the timer running")

	return cmd
}

func newTimerStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running timer",
		Args:  cobra.NoArgs,
		RunE: userAction(opts, func(cmd *cobra.Command, a *app, user string) error {
			st, err := a.engine.Current(cmd.Context(), user)
			if err != nil {
				return a.out.Fail("status failed", err)
			}
			if st.Timer == nil {
				return a.out.Success(st, "No running timer")
			}
			name := st.ProjectName
			if name == "" {
				name = st.Timer.ProjectID
			}
			text := fmt.Sprintf("%s on %s for %s", st.Timer.ID, name, formatSeconds(st.ElapsedSeconds))
			if p, ok := st.Timer.Pomodoro(); ok {
				phase := "work"
				if p.IsBreakTimer {
					phase = "break"
				}
				text += fmt.Sprintf(" (pomodoro %s, %d cycles done)", phase, p.CompletedCycles)
			}
			if st.Timer.AwaitingInterruptAck {
				text += "\nAwaiting interrupt answer"
			}
			return a.out.Success(st, text)
		}),
	}
}

func describeStop(verb string, res *engine.StopResult) string {
	if !res.Success {
		return noopText(res.Outcome)
	}
	return fmt.Sprintf("%s timer %s after %s", verb, res.TimerID, formatSeconds(res.Seconds))
}

func noopText(o engine.Outcome) string {
	return "Nothing to do: " + strings.ReplaceAll(o.Reason, "_", " ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatSeconds(s int64) string {
	return (time.Duration(s) * time.Second).String()
}
