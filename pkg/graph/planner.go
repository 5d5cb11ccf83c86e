package graph

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultOrderHint asks Planner to append at the end of the current order.
const DefaultOrderHint = " !"

// Plan is a Planner plan header.
type Plan struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CreatedDateTime string `json:"createdDateTime"`
	ETag            string `json:"@odata.etag"`
}

// PlanDetails is the detail sub-record of a plan. Its etag is required for
// conditional updates and is distinct from the plan's own etag.
type PlanDetails struct {
	ETag                 string            `json:"@odata.etag"`
	CategoryDescriptions map[string]string `json:"categoryDescriptions"`
}

// Bucket is a Planner bucket.
type Bucket struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	PlanID string `json:"planId"`
}

// Task is a created Planner task.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TaskDetails carries the detail sub-record etag needed to patch
// description and checklist.
type TaskDetails struct {
	ETag string `json:"@odata.etag"`
}

// Assignment assigns a task to a user.
type Assignment struct {
	ODataType string `json:"@odata.type"`
	OrderHint string `json:"orderHint"`
}

// NewAssignment builds the standard task assignment payload.
func NewAssignment() Assignment {
	return Assignment{
		ODataType: "#microsoft.graph.plannerAssignment",
		OrderHint: DefaultOrderHint,
	}
}

// ChecklistItem is one checklist entry on a task's detail sub-record.
type ChecklistItem struct {
	ODataType string `json:"@odata.type"`
	Title     string `json:"title"`
	IsChecked bool   `json:"isChecked"`
	OrderHint string `json:"orderHint"`
}

// TaskCreate is the payload for creating the base task record. Empty dates
// are omitted from the wire payload entirely.
type TaskCreate struct {
	PlanID            string                `json:"planId"`
	BucketID          string                `json:"bucketId"`
	Title             string                `json:"title"`
	Priority          int                   `json:"priority"`
	PercentComplete   int                   `json:"percentComplete"`
	StartDateTime     string                `json:"startDateTime,omitempty"`
	DueDateTime       string                `json:"dueDateTime,omitempty"`
	Assignments       map[string]Assignment `json:"assignments,omitempty"`
	AppliedCategories map[string]bool       `json:"appliedCategories,omitempty"`
}

// TaskDetailsPatch updates the detail sub-record of a task.
type TaskDetailsPatch struct {
	Description string                   `json:"description,omitempty"`
	Checklist   map[string]ChecklistItem `json:"checklist,omitempty"`
}

// Empty reports whether the patch would be a no-op call.
func (p TaskDetailsPatch) Empty() bool {
	return p.Description == "" && len(p.Checklist) == 0
}

// CreatePlan creates a plan owned by the group.
func (c *Client) CreatePlan(ctx context.Context, token, groupID, title string) (Plan, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/planner/plans", token, map[string]any{
		"owner": groupID,
		"title": title,
	}, "")
	if err != nil {
		return Plan{}, err
	}
	return decode[Plan](raw, "create plan")
}

// GetPlan fetches a plan header, primarily to obtain its etag before a
// conditional delete.
func (c *Client) GetPlan(ctx context.Context, token, planID string) (Plan, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/planner/plans/"+planID, token, nil, "")
	if err != nil {
		return Plan{}, err
	}
	return decode[Plan](raw, "get plan")
}

// DeletePlan deletes a plan. Graph requires the plan's current etag.
func (c *Client) DeletePlan(ctx context.Context, token, planID string) error {
	plan, err := c.GetPlan(ctx, token, planID)
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, http.MethodDelete, "/planner/plans/"+planID, token, nil, plan.ETag)
	return err
}

// GetPlanDetails fetches the plan detail sub-record.
func (c *Client) GetPlanDetails(ctx context.Context, token, planID string) (PlanDetails, error) {
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/planner/plans/%s/details", planID), token, nil, "")
	if err != nil {
		return PlanDetails{}, err
	}
	return decode[PlanDetails](raw, "get plan details")
}

// PatchPlanCategories conditionally updates the plan's category
// descriptions.
func (c *Client) PatchPlanCategories(ctx context.Context, token, planID, etag string, categories map[string]string) error {
	_, err := c.Do(ctx, http.MethodPatch, fmt.Sprintf("/planner/plans/%s/details", planID), token, map[string]any{
		"categoryDescriptions": categories,
	}, etag)
	return err
}

// CreateBucket creates a bucket in a plan.
func (c *Client) CreateBucket(ctx context.Context, token, planID, name string) (Bucket, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/planner/buckets", token, map[string]any{
		"planId":    planID,
		"name":      name,
		"orderHint": DefaultOrderHint,
	}, "")
	if err != nil {
		return Bucket{}, err
	}
	return decode[Bucket](raw, "create bucket")
}

// CreateTask creates the base task record.
func (c *Client) CreateTask(ctx context.Context, token string, payload TaskCreate) (Task, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/planner/tasks", token, payload, "")
	if err != nil {
		return Task{}, err
	}
	return decode[Task](raw, "create task")
}

// GetTaskDetails fetches a task's detail sub-record to obtain its etag.
func (c *Client) GetTaskDetails(ctx context.Context, token, taskID string) (TaskDetails, error) {
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/planner/tasks/%s/details", taskID), token, nil, "")
	if err != nil {
		return TaskDetails{}, err
	}
	return decode[TaskDetails](raw, "get task details")
}

// PatchTaskDetails conditionally updates description and checklist on the
// detail sub-record.
func (c *Client) PatchTaskDetails(ctx context.Context, token, taskID, etag string, patch TaskDetailsPatch) error {
	_, err := c.Do(ctx, http.MethodPatch, fmt.Sprintf("/planner/tasks/%s/details", taskID), token, patch, etag)
	return err
}

// ListPlans returns every plan owned by the group, following pagination.
func (c *Client) ListPlans(ctx context.Context, token, groupID string) ([]Plan, error) {
	var plans []Plan
	endpoint := fmt.Sprintf("/groups/%s/planner/plans", groupID)
	for endpoint != "" {
		raw, err := c.Do(ctx, http.MethodGet, endpoint, token, nil, "")
		if err != nil {
			return nil, err
		}
		page, err := decode[struct {
			Value    []Plan `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}](raw, "list plans")
		if err != nil {
			return nil, err
		}
		plans = append(plans, page.Value...)
		endpoint = c.nextEndpoint(page.NextLink)
	}
	return plans, nil
}
