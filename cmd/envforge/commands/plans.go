package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/envforge/envforge/pkg/graph"
	"github.com/envforge/envforge/pkg/prompt"
)

func newPlansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and clean up Planner plans",
	}
	cmd.AddCommand(newPlansListCommand())
	cmd.AddCommand(newPlansDeleteCommand())
	return cmd
}

func newPlansListCommand() *cobra.Command {
	var (
		groupID string
		filter  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the group's Planner plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			token, err := rt.token()
			if err != nil {
				return err
			}

			plans, err := rt.Client.ListPlans(cmd.Context(), token, groupID)
			if err != nil {
				return err
			}
			plans = filterPlans(plans, filter)

			out := cmd.OutOrStdout()
			for i, p := range plans {
				fmt.Fprintf(out, "%3d  %-40s %s  %s\n", i+1, p.Title, p.ID, p.CreatedDateTime)
			}
			fmt.Fprintf(out, "%d plan(s)\n", len(plans))
			return nil
		},
	}

	cmd.Flags().StringVarP(&groupID, "group-id", "g", "", "Microsoft 365 group id")
	cmd.Flags().StringVar(&filter, "filter", "", "only plans whose title contains this substring")
	cmd.MarkFlagRequired("group-id")

	return cmd
}

func newPlansDeleteCommand() *cobra.Command {
	var (
		groupID string
		filter  string
		dryRun  bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the group's plans matching a filter",
		Long: `Delete every plan in the group whose title contains the filter substring.
Each delete fetches the plan's current etag first, so plans modified since
listing are deleted against their latest version.`,
		Example: `  # See what would be deleted
  envforge plans delete --group-id GROUP --filter "PRJ-" --dry-run

  # Delete without prompting
  envforge plans delete --group-id GROUP --filter "PRJ-" --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			token, err := rt.token()
			if err != nil {
				return err
			}

			plans, err := rt.Client.ListPlans(cmd.Context(), token, groupID)
			if err != nil {
				return err
			}
			plans = filterPlans(plans, filter)

			out := cmd.OutOrStdout()
			if len(plans) == 0 {
				fmt.Fprintln(out, "no matching plans")
				return nil
			}
			for _, p := range plans {
				fmt.Fprintf(out, "  %-40s %s\n", p.Title, p.ID)
			}
			if dryRun {
				fmt.Fprintf(out, "%d plan(s) would be deleted (dry run)\n", len(plans))
				return nil
			}

			var confirm prompt.Confirmer = prompt.Static(true)
			if !yes {
				confirm = prompt.Stdin{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			}
			if !confirm.Confirm(fmt.Sprintf("delete %d plan(s)?", len(plans))) {
				fmt.Fprintln(out, "aborted")
				return nil
			}

			deleted := 0
			for _, p := range plans {
				if err := rt.Client.DeletePlan(cmd.Context(), token, p.ID); err != nil {
					log.Warn().Err(err).Str("plan", p.Title).Msg("delete failed")
					continue
				}
				deleted++
				log.Info().Str("plan", p.Title).Str("plan_id", p.ID).Msg("plan deleted")
			}
			fmt.Fprintf(out, "%d of %d plan(s) deleted\n", deleted, len(plans))
			return nil
		},
	}

	cmd.Flags().StringVarP(&groupID, "group-id", "g", "", "Microsoft 365 group id")
	cmd.Flags().StringVar(&filter, "filter", "", "only plans whose title contains this substring")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matches without deleting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without prompting")
	cmd.MarkFlagRequired("group-id")

	return cmd
}

func filterPlans(plans []graph.Plan, filter string) []graph.Plan {
	if filter == "" {
		return plans
	}
	matched := plans[:0]
	for _, p := range plans {
		if strings.Contains(strings.ToLower(p.Title), strings.ToLower(filter)) {
			matched = append(matched, p)
		}
	}
	return matched
}
