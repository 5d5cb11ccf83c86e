package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/envforge/envforge/pkg/planner"
	"github.com/envforge/envforge/pkg/prompt"
	"github.com/envforge/envforge/pkg/provision"
)

func newImportCommand() *cobra.Command {
	var (
		csvPath  string
		groupID  string
		mode     string
		planName string
		dryRun   bool
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a Planner plan from a CSV task file",
		Long: `Import Planner content from a semicolon-delimited CSV file.

Modes:
  full     create a plan with labels, buckets and tasks (default)
  plan     create an empty plan with labels only
  buckets  add buckets to an existing plan (file needs PlanID column)
  tasks    add tasks to existing buckets (file needs PlanID and BucketID)`,
		Example: `  # Full import into a new plan
  envforge import --csv tasks.csv --group-id GROUP

  # Only add the missing tasks to already-created buckets
  envforge import --csv tasks.csv --group-id GROUP --mode tasks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := time.Now()

			var confirm prompt.Confirmer
			if !yes {
				confirm = prompt.Stdin{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			}

			// Dry runs stay entirely local: no credentials, no client.
			importer := &planner.Importer{Confirm: confirm, Log: log.Logger}
			token := ""
			if !dryRun {
				rt, err := newRuntime(ctx)
				if err != nil {
					return err
				}
				if token, err = rt.token(); err != nil {
					return err
				}
				importer.Graph = rt.Client
				importer.Resolver = provision.NewIdentityResolver(rt.Client, log.Logger)
			}

			var result *planner.ImportResult
			switch strings.ToLower(mode) {
			case "full":
				tasks, warnings, err := planner.ParseTaskFile(csvPath, now)
				if err != nil {
					return err
				}
				name := planName
				if name == "" {
					name = planner.PlanNameOf(tasks)
				}
				if name == "" {
					return fmt.Errorf("plan name missing: set --plan-name or a PlanName column")
				}
				result, err = importer.Run(ctx, token, groupID, name, tasks, warnings, dryRun)
				if err != nil {
					return err
				}
			case "plan":
				header, err := planner.ParsePlanHeader(csvPath)
				if err != nil {
					return err
				}
				if planName != "" {
					header.PlanName = planName
				}
				result, err = importer.RunPlanOnly(ctx, token, groupID, header, dryRun)
				if err != nil {
					return err
				}
			case "buckets":
				planID, names, err := planner.ParseBucketFile(csvPath)
				if err != nil {
					return err
				}
				result, err = importer.RunBuckets(ctx, token, planID, names, dryRun)
				if err != nil {
					return err
				}
			case "tasks":
				tasks, warnings, err := planner.ParseTaskFileWithIDs(csvPath, now)
				if err != nil {
					return err
				}
				result, err = importer.RunTasks(ctx, token, tasks, warnings, dryRun)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown mode %q (want full, plan, buckets or tasks)", mode)
			}

			printImportResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "task CSV file path")
	cmd.Flags().StringVarP(&groupID, "group-id", "g", "", "Microsoft 365 group id owning the plan")
	cmd.Flags().StringVar(&mode, "mode", "full", "import mode: full, plan, buckets or tasks")
	cmd.Flags().StringVar(&planName, "plan-name", "", "plan title (overrides the PlanName column)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and summarize without creating anything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "answer yes to all prompts")
	cmd.MarkFlagRequired("csv")

	return cmd
}

func printImportResult(cmd *cobra.Command, r *planner.ImportResult) {
	out := cmd.OutOrStdout()
	if r.DryRun {
		fmt.Fprintf(out, "dry run: plan %q, %d bucket(s), %d label(s), nothing created\n",
			r.PlanName, len(r.Buckets), len(r.Labels))
		for _, b := range r.Buckets {
			fmt.Fprintf(out, "  %-30s %d task(s)\n", b.Name, b.TaskCount)
		}
		return
	}
	if r.PlanID != "" {
		fmt.Fprintf(out, "plan %q created: %s\n", r.PlanName, r.PlanID)
	}
	fmt.Fprintf(out, "%d bucket(s), %d task(s) created\n", len(r.BucketIDs), len(r.TaskIDs))
	if r.TasksUnassigned > 0 {
		fmt.Fprintf(out, "%d task(s) left unassigned (unresolved identities: %s)\n",
			r.TasksUnassigned, strings.Join(r.IdentitiesFailed, ", "))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
}
