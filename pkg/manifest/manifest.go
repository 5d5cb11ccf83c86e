// Package manifest reads the outer project manifest that drives a
// provisioning run.
package manifest

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/envforge/envforge/pkg/tabular"
)

var validate = validator.New()

// Record is one project environment to provision. Immutable once read.
type Record struct {
	ProjectID   string `validate:"required"`
	ProjectName string `validate:"required"`
	PMEmail     string `validate:"required,email"`
	LeadEmail   string `validate:"required,email"`
	StartDate   string
	PlannerCSV  string `validate:"required"`
}

// FolderName is the project's root folder in the document library.
func (r Record) FolderName() string {
	return r.ProjectID + "_" + r.ProjectName
}

// ParseFile reads the manifest (';'-delimited, UTF-8 with BOM) with columns
// ProjectID, ProjectName, PMEmail, LiderEmail, StartDate, PlannerCSV. Every
// record is validated before any remote call is attempted.
func ParseFile(path string) ([]Record, error) {
	rows, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, row := range rows {
		rec := Record{
			ProjectID:   strings.TrimSpace(row.Get("ProjectID")),
			ProjectName: strings.TrimSpace(row.Get("ProjectName")),
			PMEmail:     strings.TrimSpace(row.Get("PMEmail")),
			LeadEmail:   strings.TrimSpace(row.Get("LiderEmail")),
			StartDate:   strings.TrimSpace(row.Get("StartDate")),
			PlannerCSV:  strings.TrimSpace(row.Get("PlannerCSV")),
		}
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, row.Line, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no project rows", path)
	}
	return records, nil
}
