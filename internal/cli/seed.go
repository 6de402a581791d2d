package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/timekeep/internal/store"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load workspaces, users and projects from a YAML fixture",
		Long: `Load collaborator data (workspaces, memberships, users with their
settings, and projects) into the database. Records are upserted, so a
fixture can be applied more than once.

Example:
  timekeep seed --db ./timekeep.db ./fixtures/acme.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := store.LoadFixture(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load fixture", err)
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				if err := a.store.Seed(cmd.Context(), f, a.cfg.Defaults); err != nil {
					return a.out.Fail("seed failed", err)
				}
				summary := map[string]int{
					"workspaces": len(f.Workspaces),
					"users":      len(f.Users),
					"projects":   len(f.Projects),
				}
				return a.out.Success(summary, fmt.Sprintf("Seeded %d workspaces, %d users, %d projects",
					len(f.Workspaces), len(f.Users), len(f.Projects)))
			})
		},
	}
}
