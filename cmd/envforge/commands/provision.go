package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/envforge/envforge/pkg/checkpoint"
	"github.com/envforge/envforge/pkg/config"
	"github.com/envforge/envforge/pkg/manifest"
	"github.com/envforge/envforge/pkg/planner"
	"github.com/envforge/envforge/pkg/prompt"
	"github.com/envforge/envforge/pkg/provision"
)

func newProvisionCommand() *cobra.Command {
	var (
		manifestPath string
		groupID      string
		dryRun       bool
		yes          bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision project environments from a manifest",
		Long: `Provision a complete Microsoft 365 environment for every project in the
manifest: Teams channel, owner membership, Planner plan with buckets and
tasks, SharePoint folder tree, and document templates.

Progress is checkpointed after each project; re-running the same manifest
skips projects that already completed.`,
		Example: `  # Preview what would be created, no credentials needed
  envforge provision --manifest projects.csv --group-id GROUP --dry-run

  # Provision for real, unattended
  envforge provision --manifest projects.csv --group-id GROUP --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := manifest.ParseFile(manifestPath)
			if err != nil {
				return err
			}
			log.Info().Int("projects", len(records)).Str("manifest", manifestPath).Msg("manifest loaded")

			if dryRun {
				cfg, err := config.LoadRunConfig(configPath)
				if err != nil {
					return err
				}
				plans := provision.BuildDryRunPlans(records, cfg, time.Now())
				printDryRunPlans(os.Stdout, plans)
				return nil
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(rt.Config.CheckpointPath)
			if err != nil {
				return err
			}

			var confirm prompt.Confirmer
			if !yes {
				confirm = prompt.Stdin{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			}
			resolver := provision.NewIdentityResolver(rt.Client, log.Logger)
			pipeline := &provision.Pipeline{
				Graph:  rt.Client,
				Tokens: rt.Tokens,
				Importer: &planner.Importer{
					Graph:    rt.Client,
					Resolver: resolver,
					Confirm:  confirm,
					Log:      log.Logger,
				},
				Resolver: resolver,
				Store:    store,
				Config:   rt.Config,
				TenantID: rt.Creds.TenantID,
				Log:      log.Logger,
			}
			return pipeline.Run(cmd.Context(), records, groupID)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "project manifest CSV path")
	cmd.Flags().StringVarP(&groupID, "group-id", "g", "", "Microsoft 365 group id hosting the team")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview without creating anything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "answer yes to all prompts")
	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("group-id")

	return cmd
}

func printDryRunPlans(out io.Writer, plans []provision.ProjectPlan) {
	for _, p := range plans {
		fmt.Fprintf(out, "project %s (%s)\n", p.ProjectID, p.ProjectName)
		fmt.Fprintf(out, "  channel:   %s\n", p.ChannelName)
		fmt.Fprintf(out, "  owners:    %s, %s\n", p.PMEmail, p.LeadEmail)
		fmt.Fprintf(out, "  folder:    %s (%s)\n", p.FolderName, strings.Join(p.Subfolders, ", "))
		fmt.Fprintf(out, "  templates: %s\n", strings.Join(p.Templates, ", "))
		fmt.Fprintf(out, "  plan:      %s (%d tasks, ~%d calls)\n", p.PlanName, p.TaskCount, p.CallEstimate)
		if len(p.Labels) > 0 {
			fmt.Fprintf(out, "  labels:    %s\n", strings.Join(p.Labels, ", "))
		}
		for _, b := range p.Buckets {
			fmt.Fprintf(out, "    bucket %-30s (%d tasks)\n", b.Name, b.TaskCount)
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	fmt.Fprintf(out, "%d project(s), nothing created (dry run)\n", len(plans))
}
