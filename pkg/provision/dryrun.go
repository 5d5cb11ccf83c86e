package provision

import (
	"time"

	"github.com/envforge/envforge/pkg/config"
	"github.com/envforge/envforge/pkg/graph"
	"github.com/envforge/envforge/pkg/manifest"
	"github.com/envforge/envforge/pkg/planner"
)

// ProjectPlan is a dry-run preview of the environment one manifest record
// would produce. Built entirely from local input files.
type ProjectPlan struct {
	ProjectID   string
	ProjectName string
	PMEmail     string
	LeadEmail   string

	ChannelName string
	FolderName  string
	Subfolders  []string
	Templates   []string

	PlanName  string
	Labels    []string
	Buckets   []planner.BucketSummary
	TaskCount int
	Warnings  []string

	// CallEstimate counts the plan-import requests the real run would make.
	CallEstimate int
}

// BuildDryRunPlans previews every manifest record without touching the
// network. Task files that fail validation produce a plan with the failure
// recorded as a warning and an empty plan branch.
func BuildDryRunPlans(records []manifest.Record, cfg config.RunConfig, now time.Time) []ProjectPlan {
	plans := make([]ProjectPlan, 0, len(records))
	for _, rec := range records {
		plan := ProjectPlan{
			ProjectID:   rec.ProjectID,
			ProjectName: rec.ProjectName,
			PMEmail:     rec.PMEmail,
			LeadEmail:   rec.LeadEmail,
			ChannelName: graph.ChannelDisplayName(rec.ProjectName),
			FolderName:  rec.FolderName(),
			Subfolders:  cfg.Subfolders,
			Templates:   cfg.Templates,
			PlanName:    rec.ProjectName,
		}

		tasks, warnings, err := planner.ParseTaskFile(rec.PlannerCSV, now)
		if err != nil {
			plan.Warnings = append(plan.Warnings, "task input rejected: "+err.Error())
			plans = append(plans, plan)
			continue
		}
		plan.Warnings = append(plan.Warnings, warnings...)
		plan.Labels = planner.Labels(tasks)
		plan.Buckets = planner.SummarizeBuckets(tasks)
		plan.TaskCount = len(tasks)
		plan.CallEstimate = planner.CallEstimate(len(plan.Buckets), len(tasks))
		plans = append(plans, plan)
	}
	return plans
}
