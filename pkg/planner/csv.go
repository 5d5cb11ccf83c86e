package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/envforge/envforge/pkg/tabular"
)

// ParseTaskFile reads an inner task file into normalized records. Malformed
// dates do not abort the file; each produces one warning naming the field
// and row. A malformed required field aborts with an error before any
// network call.
func ParseTaskFile(path string, now time.Time) ([]TaskRecord, []string, error) {
	rows, err := tabular.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var tasks []TaskRecord
	var warnings []string
	for _, row := range rows {
		rec, rowWarnings, err := taskFromRow(row, now)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, rowWarnings...)
		tasks = append(tasks, rec)
	}
	if len(tasks) == 0 {
		return nil, nil, fmt.Errorf("%s: no task rows", path)
	}
	return tasks, warnings, nil
}

// ParseTaskFileWithIDs is the tasks-only variant: rows must carry PlanID and
// BucketID so tasks can be added to an existing plan.
func ParseTaskFileWithIDs(path string, now time.Time) ([]TaskRecord, []string, error) {
	tasks, warnings, err := ParseTaskFile(path, now)
	if err != nil {
		return nil, nil, err
	}
	for i, t := range tasks {
		if t.PlanID == "" || t.BucketID == "" {
			return nil, nil, fmt.Errorf("%s: task %d (%q): tasks mode requires PlanID and BucketID columns", path, i+1, t.Title)
		}
	}
	return tasks, warnings, nil
}

func taskFromRow(row tabular.Row, now time.Time) (TaskRecord, []string, error) {
	var warnings []string

	startISO, startWarn := ParseDate(row.Get("StartDate"), now)
	if startWarn != "" {
		warnings = append(warnings, fmt.Sprintf("row %d: StartDate %s", row.Line, startWarn))
	}
	dueISO, dueWarn := ParseDate(row.Get("DueDate"), now)
	if dueWarn != "" {
		warnings = append(warnings, fmt.Sprintf("row %d: DueDate %s", row.Line, dueWarn))
	}

	percent := 0
	if raw := strings.TrimSpace(row.Get("PercentComplete")); raw != "" {
		var err error
		percent, err = strconv.Atoi(raw)
		if err != nil || percent < 0 || percent > 100 {
			return TaskRecord{}, nil, fmt.Errorf("row %d: PercentComplete %q is not a number in 0..100", row.Line, raw)
		}
	}

	title := strings.TrimSpace(row.Get("TaskTitle"))
	if title == "" {
		return TaskRecord{}, nil, fmt.Errorf("row %d: TaskTitle is required", row.Line)
	}

	return TaskRecord{
		PlanName:        strings.TrimSpace(row.Get("PlanName")),
		BucketName:      strings.TrimSpace(row.Get("BucketName")),
		Title:           title,
		Description:     strings.TrimSpace(row.Get("TaskDescription")),
		StartDate:       startISO,
		DueDate:         dueISO,
		Priority:        PriorityFor(row.Get("Priority")),
		PercentComplete: percent,
		ChecklistRaw:    strings.TrimSpace(row.Get("ChecklistItems")),
		LabelsRaw:       strings.TrimSpace(row.Get("Labels")),
		AssigneeEmail:   strings.TrimSpace(row.Get("AssignedToEmail")),
		PlanID:          strings.TrimSpace(row.Get("PlanID")),
		BucketID:        strings.TrimSpace(row.Get("BucketID")),
	}, warnings, nil
}

// BucketRef targets a bucket in an existing plan (buckets-only mode).
type BucketRef struct {
	PlanID     string
	BucketName string
}

// ParseBucketFile reads the buckets-only input. Every row must name the same
// plan.
func ParseBucketFile(path string) (string, []string, error) {
	rows, err := tabular.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var refs []BucketRef
	for _, row := range rows {
		ref := BucketRef{
			PlanID:     strings.TrimSpace(row.Get("PlanID")),
			BucketName: strings.TrimSpace(row.Get("BucketName")),
		}
		if ref.PlanID == "" || ref.BucketName == "" {
			return "", nil, fmt.Errorf("%s: row %d: buckets mode requires PlanID and BucketName", path, row.Line)
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return "", nil, fmt.Errorf("%s: no bucket rows", path)
	}

	planIDs := make([]string, 0, len(refs))
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		planIDs = append(planIDs, r.PlanID)
		names = append(names, r.BucketName)
	}
	planIDs = OrderedUnique(planIDs)
	if len(planIDs) > 1 {
		return "", nil, fmt.Errorf("%s: buckets mode requires a single PlanID, found %v", path, planIDs)
	}
	return planIDs[0], OrderedUnique(names), nil
}

// PlanHeader is the plan-only input: just a name and its label vocabulary.
type PlanHeader struct {
	PlanName string
	Labels   []string
}

// ParsePlanHeader reads the first row of a plan-only input file.
func ParsePlanHeader(path string) (PlanHeader, error) {
	rows, err := tabular.ReadFile(path)
	if err != nil {
		return PlanHeader{}, err
	}
	if len(rows) == 0 {
		return PlanHeader{}, fmt.Errorf("%s: plan mode needs at least one row", path)
	}
	name := strings.TrimSpace(rows[0].Get("PlanName"))
	if name == "" {
		return PlanHeader{}, fmt.Errorf("%s: plan mode requires a PlanName column", path)
	}
	return PlanHeader{
		PlanName: name,
		Labels:   SplitList(rows[0].Get("Labels")),
	}, nil
}
