package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecoStreakAPI/internal/reward"
)

func newProgressCmd(opts *rootOptions) *cobra.Command {
	var clerkID string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show a user's progress toward the next reward of each type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close()

			userID, err := e.store.UserIDByClerkID(ctx, clerkID)
			if err != nil {
				return fmt.Errorf("%s: %w", clerkID, err)
			}
			overview, err := e.rewards.Overview(ctx, userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCURRENT\tNEXT\tUNLOCKED")
			for _, p := range overview.Progress {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n",
					p.Type,
					strconv.FormatFloat(p.Current, 'f', -1, 64),
					nextLabel(p),
					p.Unlocked,
					p.Total,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&clerkID, "user", "", "Clerk user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func nextLabel(p reward.Progress) string {
	switch {
	case !p.Configured:
		return "-"
	case p.Completed:
		return "complete"
	default:
		return strconv.FormatFloat(*p.Target, 'f', -1, 64)
	}
}
