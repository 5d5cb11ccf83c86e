// Package planner turns tabular task input into Planner plans, buckets and
// tasks, including category assignment and checklist construction.
package planner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/envforge/envforge/pkg/graph"
)

// ChecklistTitleMax is the Planner limit on checklist item titles; longer
// items cause a 400 from the API.
const ChecklistTitleMax = 100

// priorities is the fixed, case-insensitive priority vocabulary.
var priorities = map[string]int{
	"urgent":    1,
	"important": 2,
	"medium":    3,
	"low":       5,
	"none":      9,
}

// PriorityFor maps a priority label to its Planner value. Unrecognized
// labels, including the empty string, map to 5.
func PriorityFor(label string) int {
	if p, ok := priorities[strings.ToLower(strings.TrimSpace(label))]; ok {
		return p
	}
	return 5
}

// TaskRecord is one normalized row of task input. Immutable once parsed.
type TaskRecord struct {
	PlanName        string
	BucketName      string
	Title           string
	Description     string
	StartDate       string // ISO instant, empty = no date
	DueDate         string
	Priority        int
	PercentComplete int
	ChecklistRaw    string
	LabelsRaw       string
	AssigneeEmail   string

	// PlanID and BucketID are only populated in tasks-only mode, where the
	// input targets an existing plan.
	PlanID   string
	BucketID string
}

// OrderedUnique extracts distinct values in first-seen order.
func OrderedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a ';'-joined field, trimming whitespace and dropping
// empty segments.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// BucketNames returns the distinct bucket names in first-seen order.
func BucketNames(tasks []TaskRecord) []string {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.BucketName)
	}
	return OrderedUnique(names)
}

// Labels returns the distinct label tokens across all tasks in first-seen
// order.
func Labels(tasks []TaskRecord) []string {
	var all []string
	for _, t := range tasks {
		all = append(all, SplitList(t.LabelsRaw)...)
	}
	return OrderedUnique(all)
}

// LabelCategoryMap maps label text to a plan category slot ("category1"..).
// It is built fresh for every plan import and never shared between imports.
type LabelCategoryMap map[string]string

// NewLabelCategoryMap assigns category slots to labels in first-seen order.
func NewLabelCategoryMap(labels []string) LabelCategoryMap {
	m := make(LabelCategoryMap, len(labels))
	for i, lbl := range labels {
		m[lbl] = fmt.Sprintf("category%d", i+1)
	}
	return m
}

// CategoryDescriptions renders the map as the plan-details patch payload.
func (m LabelCategoryMap) CategoryDescriptions(labels []string) map[string]string {
	out := make(map[string]string, len(labels))
	for _, lbl := range labels {
		if slot, ok := m[lbl]; ok {
			out[slot] = lbl
		}
	}
	return out
}

// Applied converts a task's raw label field into applied category slots.
// Labels absent from the map are ignored.
func (m LabelCategoryMap) Applied(labelsRaw string) map[string]bool {
	applied := make(map[string]bool)
	for _, lbl := range SplitList(labelsRaw) {
		if slot, ok := m[lbl]; ok {
			applied[slot] = true
		}
	}
	if len(applied) == 0 {
		return nil
	}
	return applied
}

// BuildChecklist splits a ';'-joined checklist field into keyed items.
// Items over ChecklistTitleMax are truncated with one warning each; blank
// segments are dropped; each item gets a fresh unique key.
func BuildChecklist(itemsRaw string) (map[string]graph.ChecklistItem, []string) {
	items := make(map[string]graph.ChecklistItem)
	var warnings []string
	for _, item := range strings.Split(itemsRaw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// Limits are in characters, not bytes; slicing runes keeps
		// multi-byte text valid.
		if runes := []rune(item); len(runes) > ChecklistTitleMax {
			preview := item
			if len(runes) > 40 {
				preview = string(runes[:40])
			}
			warnings = append(warnings, fmt.Sprintf("checklist item truncated (%d chars): %q", len(runes), preview))
			item = string(runes[:ChecklistTitleMax])
		}
		items[uuid.New().String()] = graph.ChecklistItem{
			ODataType: "#microsoft.graph.plannerChecklistItem",
			Title:     item,
			IsChecked: false,
			OrderHint: graph.DefaultOrderHint,
		}
	}
	if len(items) == 0 {
		return nil, warnings
	}
	return items, warnings
}
