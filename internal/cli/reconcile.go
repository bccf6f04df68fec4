package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var clerkID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Grant every cosmetic a user has already earned",
		Long: `reconcile re-runs threshold evaluation against current metrics. Run it after
adding thresholds; it only grants what is missing and is safe to repeat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			if clerkID == "" {
				users, granted, err := e.rewards.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Reconciled %d users, granted %d cosmetics\n", users, granted)
				return nil
			}

			userID, err := e.store.UserIDByClerkID(ctx, clerkID)
			if err != nil {
				return fmt.Errorf("%s: %w", clerkID, err)
			}
			unlocks, err := e.rewards.Reconcile(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Granted %d cosmetics to %s\n", len(unlocks), clerkID)
			for _, u := range unlocks {
				fmt.Fprintf(out, "  %s (%s)\n", u.CosmeticName, u.Source)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clerkID, "user", "", "Clerk user id; all users when empty")
	return cmd
}
