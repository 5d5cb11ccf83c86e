package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/envforge/envforge/pkg/graph"
	"github.com/envforge/envforge/pkg/prompt"
)

// ErrCancelled is returned when the operator declines to proceed after
// reviewing input warnings.
var ErrCancelled = errors.New("import cancelled by operator")

// Planner writes propagate asynchronously; pacing keeps a large import under
// the shared throttling budget.
const (
	planSettleDelay = 2 * time.Second
	bucketPacing    = 500 * time.Millisecond
	taskPacing      = 300 * time.Millisecond
)

// IdentityResolver maps an email address to a directory object id. An empty
// result means the identity could not be resolved and the task proceeds
// unassigned.
type IdentityResolver interface {
	Resolve(ctx context.Context, token, email string) string
}

// Importer drives the plan sub-pipeline: plan creation, category
// configuration, buckets and the three-call task creation sequence.
type Importer struct {
	Graph    *graph.Client
	Resolver IdentityResolver

	// Confirm is consulted when the input produced warnings. A nil Confirm
	// means unattended mode: proceed without prompting.
	Confirm prompt.Confirmer

	// Sleep paces successive remote calls. Tests replace it.
	Sleep func(time.Duration)

	Log zerolog.Logger
}

// BucketSummary is a dry-run line item: one bucket and its task count.
type BucketSummary struct {
	Name      string
	TaskCount int
}

// SummarizeBuckets counts tasks per distinct bucket in first-seen order.
func SummarizeBuckets(tasks []TaskRecord) []BucketSummary {
	names := BucketNames(tasks)
	counts := make(map[string]int, len(names))
	for _, t := range tasks {
		counts[t.BucketName]++
	}
	out := make([]BucketSummary, 0, len(names))
	for _, n := range names {
		out = append(out, BucketSummary{Name: n, TaskCount: counts[n]})
	}
	return out
}

// ImportResult accumulates what an import created and what went wrong.
type ImportResult struct {
	PlanID             string
	PlanName           string
	BucketIDs          map[string]string
	TaskIDs            []string
	Labels             LabelCategoryMap
	Errors             []string
	IdentitiesResolved int
	IdentitiesFailed   []string
	TasksUnassigned    int

	// Dry-run fields, populated without any remote call.
	DryRun  bool
	Buckets []BucketSummary
}

// CallEstimate is the rough number of remote calls a full import will issue:
// one plan, one category patch, one per bucket, three per task.
func CallEstimate(bucketCount, taskCount int) int {
	return 1 + 1 + bucketCount + taskCount*3
}

func (im *Importer) sleep(d time.Duration) {
	if im.Sleep != nil {
		im.Sleep(d)
	} else {
		time.Sleep(d)
	}
}

// confirmWarnings surfaces input warnings and, in interactive mode, asks the
// operator whether to proceed. Dry runs and unattended runs never prompt.
func (im *Importer) confirmWarnings(warnings []string, dryRun bool) error {
	if len(warnings) == 0 {
		return nil
	}
	for _, w := range warnings {
		im.Log.Warn().Msg(w)
	}
	if dryRun || im.Confirm == nil {
		return nil
	}
	if !im.Confirm.Confirm(fmt.Sprintf("%d input warnings, proceed anyway?", len(warnings))) {
		return ErrCancelled
	}
	return nil
}

// Run imports a full plan: creates the plan record, patches its category
// descriptions from the distinct labels, creates one bucket per distinct
// bucket name and then creates every task. Per-task failures are captured in
// the result and do not stop the batch.
func (im *Importer) Run(ctx context.Context, token, groupID, planName string, tasks []TaskRecord, warnings []string, dryRun bool) (*ImportResult, error) {
	result := &ImportResult{
		PlanName:  planName,
		BucketIDs: make(map[string]string),
	}

	bucketNames := BucketNames(tasks)
	labels := Labels(tasks)

	im.Log.Info().
		Str("plan", planName).
		Int("buckets", len(bucketNames)).
		Int("tasks", len(tasks)).
		Strs("labels", labels).
		Int("call_estimate", CallEstimate(len(bucketNames), len(tasks))).
		Msg("plan import")

	if err := im.confirmWarnings(warnings, dryRun); err != nil {
		return nil, err
	}

	if dryRun {
		result.DryRun = true
		result.Buckets = SummarizeBuckets(tasks)
		return result, nil
	}

	// The label map is scoped to this import and rebuilt from scratch;
	// concurrent imports must never share one.
	labelMap, err := im.createPlanWithCategories(ctx, token, groupID, planName, labels, result)
	if err != nil {
		return nil, err
	}
	result.Labels = labelMap

	for _, name := range bucketNames {
		bucket, err := im.Graph.CreateBucket(ctx, token, result.PlanID, name)
		if err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", name, err)
		}
		result.BucketIDs[name] = bucket.ID
		im.Log.Info().Str("bucket", name).Str("bucket_id", bucket.ID).Msg("bucket created")
		im.sleep(bucketPacing)
	}

	im.createTasks(ctx, token, tasks, labelMap, result, func(t TaskRecord) (string, string) {
		return result.PlanID, result.BucketIDs[t.BucketName]
	})
	return result, nil
}

// RunPlanOnly creates just the plan header and its categories.
func (im *Importer) RunPlanOnly(ctx context.Context, token, groupID string, header PlanHeader, dryRun bool) (*ImportResult, error) {
	result := &ImportResult{PlanName: header.PlanName, BucketIDs: make(map[string]string)}
	if dryRun {
		result.DryRun = true
		return result, nil
	}
	labelMap, err := im.createPlanWithCategories(ctx, token, groupID, header.PlanName, header.Labels, result)
	if err != nil {
		return nil, err
	}
	result.Labels = labelMap
	return result, nil
}

// RunBuckets creates buckets in an existing plan.
func (im *Importer) RunBuckets(ctx context.Context, token, planID string, names []string, dryRun bool) (*ImportResult, error) {
	result := &ImportResult{PlanID: planID, BucketIDs: make(map[string]string)}
	if dryRun {
		result.DryRun = true
		for _, n := range names {
			result.Buckets = append(result.Buckets, BucketSummary{Name: n})
		}
		return result, nil
	}
	for _, name := range names {
		bucket, err := im.Graph.CreateBucket(ctx, token, planID, name)
		if err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", name, err)
		}
		result.BucketIDs[name] = bucket.ID
		im.sleep(bucketPacing)
	}
	return result, nil
}

// RunTasks adds tasks to existing plans and buckets named by the records
// themselves. Labels are not applied in this mode: the category map belongs
// to a plan import and is unknown here.
func (im *Importer) RunTasks(ctx context.Context, token string, tasks []TaskRecord, warnings []string, dryRun bool) (*ImportResult, error) {
	result := &ImportResult{BucketIDs: make(map[string]string)}
	if err := im.confirmWarnings(warnings, dryRun); err != nil {
		return nil, err
	}
	if dryRun {
		result.DryRun = true
		result.Buckets = SummarizeBuckets(tasks)
		return result, nil
	}
	im.createTasks(ctx, token, tasks, nil, result, func(t TaskRecord) (string, string) {
		return t.PlanID, t.BucketID
	})
	return result, nil
}

func (im *Importer) createPlanWithCategories(ctx context.Context, token, groupID, planName string, labels []string, result *ImportResult) (LabelCategoryMap, error) {
	plan, err := im.Graph.CreatePlan(ctx, token, groupID, planName)
	if err != nil {
		return nil, fmt.Errorf("create plan %q: %w", planName, err)
	}
	result.PlanID = plan.ID
	im.Log.Info().Str("plan_id", plan.ID).Msg("plan created")
	im.sleep(planSettleDelay)

	labelMap := NewLabelCategoryMap(labels)
	if len(labels) > 0 {
		details, err := im.Graph.GetPlanDetails(ctx, token, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("read plan details: %w", err)
		}
		if err := im.Graph.PatchPlanCategories(ctx, token, plan.ID, details.ETag, labelMap.CategoryDescriptions(labels)); err != nil {
			return nil, fmt.Errorf("configure plan categories: %w", err)
		}
	}
	return labelMap, nil
}

func (im *Importer) createTasks(ctx context.Context, token string, tasks []TaskRecord, labelMap LabelCategoryMap, result *ImportResult, target func(TaskRecord) (planID, bucketID string)) {
	for i, task := range tasks {
		assigneeID := ""
		if task.AssigneeEmail != "" {
			assigneeID = im.Resolver.Resolve(ctx, token, task.AssigneeEmail)
			if assigneeID != "" {
				result.IdentitiesResolved++
			} else {
				result.IdentitiesFailed = append(result.IdentitiesFailed, task.AssigneeEmail)
			}
		} else {
			result.TasksUnassigned++
		}

		planID, bucketID := target(task)
		taskID, err := im.createTaskFull(ctx, token, planID, bucketID, task, assigneeID, labelMap)
		if err != nil {
			msg := fmt.Sprintf("task %d/%d %q: %v", i+1, len(tasks), task.Title, err)
			result.Errors = append(result.Errors, msg)
			im.Log.Error().Err(err).Str("task", task.Title).Msg("task creation failed")
			continue
		}
		result.TaskIDs = append(result.TaskIDs, taskID)
		im.Log.Info().Str("task", task.Title).Int("n", i+1).Int("total", len(tasks)).Msg("task created")
		im.sleep(taskPacing)
	}
}

// createTaskFull creates one task in the three-call sequence: create the
// base record, fetch the detail sub-record for its concurrency token, then
// conditionally patch description and checklist. The patch is skipped when
// it would be empty.
func (im *Importer) createTaskFull(ctx context.Context, token, planID, bucketID string, task TaskRecord, assigneeID string, labelMap LabelCategoryMap) (string, error) {
	payload := graph.TaskCreate{
		PlanID:          planID,
		BucketID:        bucketID,
		Title:           task.Title,
		Priority:        task.Priority,
		PercentComplete: task.PercentComplete,
		StartDateTime:   task.StartDate,
		DueDateTime:     task.DueDate,
	}
	if assigneeID != "" {
		payload.Assignments = map[string]graph.Assignment{assigneeID: graph.NewAssignment()}
	}
	if labelMap != nil {
		payload.AppliedCategories = labelMap.Applied(task.LabelsRaw)
	}

	created, err := im.Graph.CreateTask(ctx, token, payload)
	if err != nil {
		return "", err
	}

	// The detail sub-record has its own concurrency token, distinct from the
	// base record's.
	details, err := im.Graph.GetTaskDetails(ctx, token, created.ID)
	if err != nil {
		return "", fmt.Errorf("read task details: %w", err)
	}

	checklist, warnings := BuildChecklist(task.ChecklistRaw)
	for _, w := range warnings {
		im.Log.Warn().Str("task", task.Title).Msg(w)
	}
	patch := graph.TaskDetailsPatch{
		Description: task.Description,
		Checklist:   checklist,
	}
	if patch.Empty() {
		return created.ID, nil
	}
	if err := im.Graph.PatchTaskDetails(ctx, token, created.ID, details.ETag, patch); err != nil {
		return "", fmt.Errorf("patch task details: %w", err)
	}
	return created.ID, nil
}

// PlanNameOf returns the plan name declared by the input rows.
func PlanNameOf(tasks []TaskRecord) string {
	for _, t := range tasks {
		if name := strings.TrimSpace(t.PlanName); name != "" {
			return name
		}
	}
	return ""
}
