package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

const header = "ProjectID;ProjectName;PMEmail;LiderEmail;StartDate;PlannerCSV"

func TestParseFile(t *testing.T) {
	content := header + "\n" +
		"PRJ-001;Website Redesign;pm@example.com;lead@example.com;01032026;tasks_001.csv\n" +
		"PRJ-002;Mobile App;pm2@example.com;lead2@example.com;15032026;tasks_002.csv\n"
	path := writeManifest(t, content)

	records, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.ProjectID != "PRJ-001" || first.PMEmail != "pm@example.com" {
		t.Errorf("first record parsed wrong: %+v", first)
	}
	if got := first.FolderName(); got != "PRJ-001_Website Redesign" {
		t.Errorf("FolderName = %q", got)
	}
}

func TestParseFileRejectsBadEmail(t *testing.T) {
	content := header + "\n" +
		"PRJ-001;Website Redesign;not-an-email;lead@example.com;01032026;tasks.csv\n"
	path := writeManifest(t, content)
	if _, err := ParseFile(path); err == nil {
		t.Error("expected validation error for bad email")
	}
}

func TestParseFileRejectsMissingFields(t *testing.T) {
	content := header + "\n" +
		";Website Redesign;pm@example.com;lead@example.com;01032026;tasks.csv\n"
	path := writeManifest(t, content)
	if _, err := ParseFile(path); err == nil {
		t.Error("expected validation error for missing project id")
	}
}

func TestParseFileEmpty(t *testing.T) {
	path := writeManifest(t, header+"\n")
	if _, err := ParseFile(path); err == nil {
		t.Error("expected error for zero records")
	}
}
