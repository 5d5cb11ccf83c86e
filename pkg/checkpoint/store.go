// Package checkpoint persists cumulative per-project provisioning progress
// so an interrupted run can resume without re-creating prior work.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Coarse project statuses recorded in the checkpoint.
const (
	StatusPendingActivation = "pending_activation"
	StatusFailed            = "failed"
)

// EnvironmentRecord is everything provisioned for one project.
type EnvironmentRecord struct {
	GroupID      string            `json:"group_id"`
	ChannelID    string            `json:"channel_id"`
	ChannelURL   string            `json:"channel_url"`
	PlanID       string            `json:"plan_id"`
	PlanURL      string            `json:"plan_url"`
	BucketIDs    map[string]string `json:"bucket_ids"`
	TabID        string            `json:"tab_id,omitempty"`
	FolderID     string            `json:"folder_id"`
	FolderURL    string            `json:"folder_url"`
	SubfolderIDs map[string]string `json:"subfolder_ids"`
	TaskCount    int               `json:"task_count"`
	Status       string            `json:"status"`
}

// Store is a crash-tolerant JSON checkpoint: one object keyed by project
// identifier, rewritten in full after each completed project so a partial
// write never corrupts entries already on disk.
type Store struct {
	path    string
	records map[string]*EnvironmentRecord
}

// Open loads the checkpoint at path, or starts empty when the file does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]*EnvironmentRecord)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return s, nil
}

// Get returns the record for a project, if any.
func (s *Store) Get(projectID string) (*EnvironmentRecord, bool) {
	rec, ok := s.records[projectID]
	return rec, ok
}

// Len is the number of persisted projects.
func (s *Store) Len() int { return len(s.records) }

// Path is the checkpoint file location.
func (s *Store) Path() string { return s.path }

// Put stores the record for a project and rewrites the checkpoint file.
// Existing entries for other projects are preserved; the record is only
// removed by explicit external action, never here.
func (s *Store) Put(projectID string, rec *EnvironmentRecord) error {
	s.records[projectID] = rec
	return s.flush()
}

// flush writes the whole checkpoint to a temporary file and renames it into
// place, keeping non-ASCII text unescaped.
func (s *Store) flush() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
