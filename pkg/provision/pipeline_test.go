package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/envforge/envforge/pkg/checkpoint"
	"github.com/envforge/envforge/pkg/config"
	"github.com/envforge/envforge/pkg/graph"
	"github.com/envforge/envforge/pkg/manifest"
	"github.com/envforge/envforge/pkg/planner"
)

// fakeM365 emulates the Graph surface the pipeline touches: site and drive
// lookups, folder creation, Teams channels and members, Planner, uploads.
type fakeM365 struct {
	mu       sync.Mutex
	requests []string

	channelCreateStatus int // 0 means success
	memberStatus        int
	tabStatus           int

	itemSeq int
	items   map[string]string // drive path -> item id
	paths   map[string]string // item id -> drive path
	uploads []string
}

func newFakeM365() *fakeM365 {
	return &fakeM365{
		items: map[string]string{},
		paths: map[string]string{"root-1": ""},
	}
}

func (f *fakeM365) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeM365) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v any) {
		json.NewEncoder(w).Encode(v)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		path := r.URL.Path
		switch {
		// Site and drive
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/sites/contoso.sharepoint.com:"):
			writeJSON(w, map[string]string{"id": "site-1"})
		case r.Method == http.MethodGet && path == "/sites/site-1/drive/root":
			writeJSON(w, map[string]string{"id": "root-1"})
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/sites/site-1/drive/root:/"):
			itemPath := strings.TrimPrefix(path, "/sites/site-1/drive/root:/")
			f.mu.Lock()
			id, ok := f.items[itemPath]
			f.mu.Unlock()
			if !ok {
				http.Error(w, `{"error":{"code":"itemNotFound"}}`, http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]any{"id": id, "folder": map[string]any{}})
		case r.Method == http.MethodPost && strings.HasPrefix(path, "/sites/site-1/drive/items/") && strings.HasSuffix(path, "/children"):
			parentID := strings.TrimSuffix(strings.TrimPrefix(path, "/sites/site-1/drive/items/"), "/children")
			var body struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			parentPath, ok := f.paths[parentID]
			if !ok {
				f.mu.Unlock()
				http.Error(w, `{"error":{"code":"itemNotFound"}}`, http.StatusNotFound)
				return
			}
			childPath := body.Name
			if parentPath != "" {
				childPath = parentPath + "/" + body.Name
			}
			if _, exists := f.items[childPath]; exists {
				f.mu.Unlock()
				http.Error(w, `{"error":{"code":"nameAlreadyExists"}}`, http.StatusConflict)
				return
			}
			f.itemSeq++
			id := fmt.Sprintf("item-%d", f.itemSeq)
			f.items[childPath] = id
			f.paths[id] = childPath
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": id, "name": body.Name, "webUrl": "https://sp/" + childPath, "folder": map[string]any{}})
		case r.Method == http.MethodPut && strings.Contains(path, ":/content"):
			f.mu.Lock()
			f.uploads = append(f.uploads, path)
			f.mu.Unlock()
			writeJSON(w, map[string]string{"id": "file-1"})

		// Teams
		case r.Method == http.MethodPost && path == "/teams/group-1/channels":
			if f.channelCreateStatus != 0 {
				http.Error(w, `{"error":{"code":"conflict"}}`, f.channelCreateStatus)
				return
			}
			writeJSON(w, map[string]string{"id": "chan-1", "webUrl": "https://teams.example.com/chan-1"})
		case r.Method == http.MethodGet && path == "/teams/group-1/channels":
			writeJSON(w, map[string]any{"value": []map[string]string{
				{"id": "chan-9", "displayName": "Website Redesign", "webUrl": "https://teams.example.com/chan-9"},
			}})
		case r.Method == http.MethodPost && path == "/teams/group-1/members":
			if f.memberStatus != 0 {
				http.Error(w, `{"error":{"code":"conflict"}}`, f.memberStatus)
				return
			}
			writeJSON(w, map[string]string{"id": "member-1"})
		case r.Method == http.MethodPost && strings.HasSuffix(path, "/tabs"):
			if f.tabStatus != 0 {
				http.Error(w, `{"error":{"code":"conflict"}}`, f.tabStatus)
				return
			}
			writeJSON(w, map[string]string{"id": "tab-1"})

		// Users
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/users/"):
			writeJSON(w, map[string]string{"id": "user-1"})

		// Planner
		case r.Method == http.MethodPost && path == "/planner/plans":
			writeJSON(w, map[string]string{"id": "plan-1"})
		case strings.HasPrefix(path, "/planner/plans/") && strings.HasSuffix(path, "/details"):
			if r.Method == http.MethodPatch {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, map[string]string{"@odata.etag": `W/"pd"`})
		case r.Method == http.MethodPost && path == "/planner/buckets":
			writeJSON(w, map[string]string{"id": "bucket-1"})
		case r.Method == http.MethodPost && path == "/planner/tasks":
			writeJSON(w, map[string]string{"id": "task-1"})
		case strings.HasPrefix(path, "/planner/tasks/"):
			if r.Method == http.MethodPatch {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, map[string]string{"@odata.etag": `W/"td"`})

		default:
			http.Error(w, "unexpected: "+r.Method+" "+path, http.StatusTeapot)
		}
	})
}

// pipelineFixture wires a full pipeline against the fake server with
// recorded sleeps and a real temp-dir checkpoint.
type pipelineFixture struct {
	pipeline *Pipeline
	store    *checkpoint.Store
	sleeps   []time.Duration
	record   manifest.Record
}

func newPipelineFixture(t *testing.T, srv *httptest.Server) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	taskCSV := filepath.Join(dir, "tasks.csv")
	content := "PlanName;BucketName;TaskTitle;TaskDescription;StartDate;DueDate;Priority;PercentComplete;ChecklistItems;Labels;AssignedToEmail\n" +
		"Website Redesign;Inception;Kickoff;First meeting;17022026;20022026;urgent;0;;Design;pm@example.com\n" +
		"Website Redesign;Execution;Build;;;;low;0;;;\n"
	if err := os.WriteFile(taskCSV, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	templatesDir := filepath.Join(dir, "templates")
	os.Mkdir(templatesDir, 0755)
	os.WriteFile(filepath.Join(templatesDir, "acta.xlsx"), []byte("x"), 0644)

	client := graph.NewClient(zerolog.Nop())
	client.BaseURL = srv.URL
	client.Sleep = func(time.Duration) {}

	store, err := checkpoint.Open(filepath.Join(dir, "project_config.json"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.RunConfig{
		SiteURL:          "https://contoso.sharepoint.com/sites/pm",
		Subfolders:       []string{"01_INICIO", "02_PLANIFICACION"},
		InitialSubfolder: "01_INICIO",
		HelpFolder:       "_AYUDA_PM",
		TemplatesDir:     templatesDir,
		Templates:        []string{"acta.xlsx", "missing.docx"},
		PropagationDelay: config.Duration(60 * time.Second),
		CheckpointPath:   store.Path(),
	}

	resolver := NewIdentityResolver(client, zerolog.Nop())
	fx := &pipelineFixture{
		store: store,
		record: manifest.Record{
			ProjectID:   "PRJ-001",
			ProjectName: "Website Redesign",
			PMEmail:     "pm@example.com",
			LeadEmail:   "lead@example.com",
			PlannerCSV:  taskCSV,
		},
	}
	fx.pipeline = &Pipeline{
		Graph:  client,
		Tokens: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
		Importer: &planner.Importer{
			Graph:    client,
			Resolver: resolver,
			Sleep:    func(time.Duration) {},
			Log:      zerolog.Nop(),
		},
		Resolver: resolver,
		Store:    store,
		Config:   cfg,
		TenantID: "tenant-1",
		Sleep:    func(d time.Duration) { fx.sleeps = append(fx.sleeps, d) },
		Now:      func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) },
		Log:      zerolog.Nop(),
	}
	return fx
}

func TestPipelineHappyPath(t *testing.T) {
	fake := newFakeM365()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, ok := fx.store.Get("PRJ-001")
	if !ok {
		t.Fatal("checkpoint record missing")
	}
	if rec.Status != checkpoint.StatusPendingActivation {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.ChannelID != "chan-1" {
		t.Errorf("ChannelID = %q", rec.ChannelID)
	}
	if rec.PlanID != "plan-1" {
		t.Errorf("PlanID = %q", rec.PlanID)
	}
	if !strings.Contains(rec.PlanURL, "tenant-1") || !strings.Contains(rec.PlanURL, "plan-1") {
		t.Errorf("PlanURL = %q", rec.PlanURL)
	}
	if rec.TabID != "tab-1" {
		t.Errorf("TabID = %q", rec.TabID)
	}
	if rec.TaskCount != 2 {
		t.Errorf("TaskCount = %d", rec.TaskCount)
	}
	if rec.FolderID == "" {
		t.Error("FolderID missing")
	}
	if len(rec.SubfolderIDs) != 2 {
		t.Errorf("SubfolderIDs = %v", rec.SubfolderIDs)
	}

	// The propagation wait fired once with the configured delay.
	found := false
	for _, d := range fx.sleeps {
		if d == 60*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("propagation wait not observed: %v", fx.sleeps)
	}

	// Both owners were granted independently, each grant paced so the
	// roster settles between writes.
	if got := fake.count("POST /teams/group-1/members"); got != 2 {
		t.Errorf("expected 2 membership grants, got %d", got)
	}
	paced := 0
	for _, d := range fx.sleeps {
		if d == 500*time.Millisecond {
			paced++
		}
	}
	if paced != 2 {
		t.Errorf("expected 2 paced membership writes, got %d: %v", paced, fx.sleeps)
	}

	// The present template was uploaded; the missing one was skipped.
	if len(fake.uploads) != 1 || !strings.Contains(fake.uploads[0], "acta.xlsx") {
		t.Errorf("uploads = %v", fake.uploads)
	}
}

func TestPipelineResumeSkipsCompletedProjects(t *testing.T) {
	fake := newFakeM365()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	channelCreates := fake.count("POST /teams/group-1/channels")
	planCreates := fake.count("POST /planner/plans")

	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if got := fake.count("POST /teams/group-1/channels"); got != channelCreates {
		t.Errorf("resume re-created the channel: %d -> %d", channelCreates, got)
	}
	if got := fake.count("POST /planner/plans"); got != planCreates {
		t.Errorf("resume re-imported the plan: %d -> %d", planCreates, got)
	}
}

func TestPipelineRecoversExistingChannel(t *testing.T) {
	fake := newFakeM365()
	fake.channelCreateStatus = http.StatusConflict
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, _ := fx.store.Get("PRJ-001")
	if rec.ChannelID != "chan-9" {
		t.Errorf("recovered ChannelID = %q, want chan-9", rec.ChannelID)
	}
	if rec.Status != checkpoint.StatusPendingActivation {
		t.Errorf("Status = %q", rec.Status)
	}
}

func TestPipelineTreats400AsChannelConflict(t *testing.T) {
	fake := newFakeM365()
	fake.channelCreateStatus = http.StatusBadRequest
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rec, _ := fx.store.Get("PRJ-001")
	if rec.ChannelID != "chan-9" {
		t.Errorf("400 not treated as conflict, ChannelID = %q", rec.ChannelID)
	}
}

func TestPipelineMissingTeamsCapabilityAbortsProject(t *testing.T) {
	fake := newFakeM365()
	fake.channelCreateStatus = http.StatusNotFound
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("Run should continue past failed projects: %v", err)
	}

	rec, ok := fx.store.Get("PRJ-001")
	if !ok {
		t.Fatal("failed project must still be checkpointed")
	}
	if rec.Status != checkpoint.StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}
	if got := fake.count("POST /planner/plans"); got != 0 {
		t.Errorf("plan import should not run after a capability failure, got %d calls", got)
	}
}

func TestPipelineMemberConflictIsNoOp(t *testing.T) {
	fake := newFakeM365()
	fake.memberStatus = http.StatusConflict
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rec, _ := fx.store.Get("PRJ-001")
	if rec.Status != checkpoint.StatusPendingActivation {
		t.Errorf("existing members should not fail the project, Status = %q", rec.Status)
	}
}

func TestPipelineTabConflictIsNoOp(t *testing.T) {
	fake := newFakeM365()
	fake.tabStatus = http.StatusConflict
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	fx := newPipelineFixture(t, srv)
	if err := fx.pipeline.Run(context.Background(), []manifest.Record{fx.record}, "group-1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rec, _ := fx.store.Get("PRJ-001")
	if rec.Status != checkpoint.StatusPendingActivation {
		t.Errorf("existing tab should not fail the project, Status = %q", rec.Status)
	}
	if rec.TabID != "" {
		t.Errorf("TabID should stay empty on conflict, got %q", rec.TabID)
	}
}
