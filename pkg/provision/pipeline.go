package provision

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/envforge/envforge/pkg/checkpoint"
	"github.com/envforge/envforge/pkg/config"
	"github.com/envforge/envforge/pkg/graph"
	"github.com/envforge/envforge/pkg/manifest"
	"github.com/envforge/envforge/pkg/planner"
)

// Stage identifies a step of the per-project pipeline. Transitions are
// forward-only.
type Stage string

const (
	StageResolvingIdentities Stage = "resolving_identities"
	StageCreatingChannel     Stage = "creating_channel"
	StageAwaitingPropagation Stage = "awaiting_propagation"
	StageGrantingMembership  Stage = "granting_membership"
	StageImportingPlan       Stage = "importing_plan"
	StageAnchoringTab        Stage = "anchoring_tab"
	StageBuildingFolderTree  Stage = "building_folder_tree"
	StageUploadingTemplates  Stage = "uploading_templates"
	StagePersisting          Stage = "persisting"
)

// channelConflictCodes covers the Graph quirk where an existing channel can
// surface as 400 as well as 409. Other resource kinds only conflict on 409.
var channelConflictCodes = []int{http.StatusBadRequest, http.StatusConflict}

// memberPacing spaces consecutive membership writes so the team roster has
// settled before the next one lands.
const memberPacing = 500 * time.Millisecond

// Pipeline sequences environment creation for each manifest record:
// channel, membership, plan import, tab anchor, folder tree, uploads,
// checkpoint. Projects run strictly one at a time in manifest order.
type Pipeline struct {
	Graph    *graph.Client
	Tokens   oauth2.TokenSource
	Importer *planner.Importer
	Resolver *IdentityResolver
	Store    *checkpoint.Store
	Config   config.RunConfig

	// TenantID is used to compose plan and tab URLs.
	TenantID string

	// Sleep implements the propagation wait. Tests replace it.
	Sleep func(time.Duration)

	// Now anchors the malformed-date fallback. Defaults to time.Now.
	Now func() time.Time

	Log zerolog.Logger
}

// siteRefs is the per-run SharePoint context resolved once up front.
type siteRefs struct {
	SiteID string
	RootID string
}

func (p *Pipeline) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
	} else {
		time.Sleep(d)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// token fetches a fresh bearer token; the source caches and refreshes, so
// calling it at each project boundary keeps multi-hour runs authenticated.
func (p *Pipeline) token() (string, error) {
	t, err := p.Tokens.Token()
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	return t.AccessToken, nil
}

// Run provisions every manifest record. Only an unrecoverable checkpoint
// write (or failing to resolve the site at all) aborts the run; any other
// failure is confined to its project.
func (p *Pipeline) Run(ctx context.Context, records []manifest.Record, groupID string) error {
	token, err := p.token()
	if err != nil {
		return err
	}

	site, err := p.prepareSite(ctx, token)
	if err != nil {
		return fmt.Errorf("resolve document library: %w", err)
	}

	for i, rec := range records {
		p.Log.Info().
			Int("n", i+1).
			Int("total", len(records)).
			Str("project", rec.ProjectID).
			Str("name", rec.ProjectName).
			Msg("provisioning project environment")
		if err := p.runProject(ctx, site, rec, groupID); err != nil {
			return err
		}
	}
	return nil
}

// prepareSite resolves the site and drive root and ensures the shared help
// folder exists. Done once per run.
func (p *Pipeline) prepareSite(ctx context.Context, token string) (siteRefs, error) {
	site, err := p.Graph.SiteByURL(ctx, token, p.Config.SiteURL)
	if err != nil {
		return siteRefs{}, err
	}
	root, err := p.Graph.DriveRoot(ctx, token, site.ID)
	if err != nil {
		return siteRefs{}, err
	}
	refs := siteRefs{SiteID: site.ID, RootID: root.ID}

	if p.Config.HelpFolder != "" {
		if err := p.ensureHelpFolder(ctx, token, refs); err != nil {
			return siteRefs{}, err
		}
	}
	return refs, nil
}

// ensureHelpFolder creates the shared help folder at the drive root if it
// is missing. Idempotent.
func (p *Pipeline) ensureHelpFolder(ctx context.Context, token string, site siteRefs) error {
	item, err := p.Graph.ItemByPath(ctx, token, site.SiteID, p.Config.HelpFolder)
	if err == nil {
		p.Log.Info().Str("folder", p.Config.HelpFolder).Str("folder_id", item.ID).Msg("help folder already exists")
		return nil
	}
	if !graph.IsStatus(err, http.StatusNotFound) {
		return err
	}
	created, err := p.Graph.CreateFolder(ctx, token, site.SiteID, site.RootID, p.Config.HelpFolder)
	if err != nil {
		return err
	}
	p.Log.Info().Str("folder", p.Config.HelpFolder).Str("folder_id", created.ID).Msg("help folder created")
	return nil
}

// runProject walks one manifest record through the stage machine. A
// capability failure or an unclassified remote error aborts the remaining
// stages; the checkpoint is still written so the run can resume.
func (p *Pipeline) runProject(ctx context.Context, site siteRefs, rec manifest.Record, groupID string) error {
	log := p.Log.With().Str("project", rec.ProjectID).Logger()

	if existing, ok := p.Store.Get(rec.ProjectID); ok && existing.Status == checkpoint.StatusPendingActivation {
		log.Info().Msg("environment already provisioned, skipping")
		return nil
	}

	env := &checkpoint.EnvironmentRecord{
		GroupID:      groupID,
		Status:       checkpoint.StatusPendingActivation,
		BucketIDs:    map[string]string{},
		SubfolderIDs: map[string]string{},
	}

	token, err := p.token()
	if err != nil {
		return err
	}

	// [resolving_identities]
	log.Info().Str("stage", string(StageResolvingIdentities)).Msg("stage")
	pmID := p.Resolver.Resolve(ctx, token, rec.PMEmail)
	leadID := p.Resolver.Resolve(ctx, token, rec.LeadEmail)

	// [creating_channel]
	log.Info().Str("stage", string(StageCreatingChannel)).Msg("stage")
	outcome, err := Ensure(ctx,
		func(ctx context.Context) (Resource, error) {
			ch, err := p.Graph.CreateChannel(ctx, token, groupID, rec.ProjectName)
			if err != nil {
				return Resource{}, err
			}
			return Resource{ID: ch.ID, URL: ch.WebURL}, nil
		},
		func(ctx context.Context) (Resource, bool, error) {
			ch, found, err := p.Graph.ChannelByName(ctx, token, groupID, rec.ProjectName)
			if err != nil || !found {
				return Resource{}, false, err
			}
			return Resource{ID: ch.ID, URL: ch.WebURL}, true, nil
		},
		channelConflictCodes...,
	)
	switch {
	case err == nil:
		env.ChannelID = outcome.ID
		env.ChannelURL = outcome.URL
		if outcome.Kind == OutcomeSkipped {
			log.Warn().Str("reason", outcome.Reason).Msg("channel exists but id not recovered")
		} else {
			log.Info().Str("channel_id", outcome.ID).Str("outcome", string(outcome.Kind)).Msg("channel ready")
		}
	case graph.IsStatus(err, http.StatusNotFound):
		// The group has no team behind it; nothing else in this project can
		// succeed.
		stepErr := (&StepError{
			Class:   ErrorClassCapability,
			Message: fmt.Sprintf("group %s has no Teams capability", groupID),
			Remediation: fmt.Sprintf(
				"enable Teams on the group (PUT /groups/%s/team) and re-run", groupID),
			Err: err,
		}).WithProject(rec.ProjectID, StageCreatingChannel)
		log.Error().Err(stepErr).Str("remediation", stepErr.Remediation).Msg("project aborted")
		return p.persistFailed(env, rec, log)
	default:
		stepErr := Classify(err, "create channel", channelConflictCodes...).WithProject(rec.ProjectID, StageCreatingChannel)
		log.Error().Err(stepErr).Msg("project aborted")
		return p.persistFailed(env, rec, log)
	}

	// [awaiting_propagation]: the directory is eventually consistent right
	// after channel creation; membership grants issued too early bounce.
	log.Info().
		Str("stage", string(StageAwaitingPropagation)).
		Dur("delay", p.Config.PropagationDelay.Std()).
		Msg("stage")
	p.sleep(p.Config.PropagationDelay.Std())

	// [granting_membership]
	log.Info().Str("stage", string(StageGrantingMembership)).Msg("stage")
	if env.ChannelID != "" {
		p.grantOwner(ctx, token, groupID, "pm", rec.PMEmail, pmID, log)
		p.grantOwner(ctx, token, groupID, "lead", rec.LeadEmail, leadID, log)
	} else {
		log.Warn().Msg("no channel id, skipping membership grants")
	}

	// [importing_plan] runs even when the channel branch degraded.
	log.Info().Str("stage", string(StageImportingPlan)).Msg("stage")
	if err := p.importPlan(ctx, token, rec, groupID, env, log); err != nil {
		log.Error().Err(err).Msg("project aborted")
		return p.persistFailed(env, rec, log)
	}

	// [anchoring_tab] needs both a channel and a plan.
	log.Info().Str("stage", string(StageAnchoringTab)).Msg("stage")
	if env.ChannelID != "" && env.PlanID != "" {
		p.anchorTab(ctx, token, groupID, env, log)
	} else {
		log.Warn().Msg("missing channel or plan id, skipping tab anchor")
	}

	// [building_folder_tree]
	log.Info().Str("stage", string(StageBuildingFolderTree)).Msg("stage")
	initialFolderID, err := p.buildFolderTree(ctx, token, site, rec, env, log)
	if err != nil {
		log.Error().Err(err).Msg("project aborted")
		return p.persistFailed(env, rec, log)
	}

	// [uploading_templates]
	log.Info().Str("stage", string(StageUploadingTemplates)).Msg("stage")
	if initialFolderID != "" {
		p.uploadTemplates(ctx, token, site, initialFolderID, log)
	} else {
		log.Warn().Str("subfolder", p.Config.InitialSubfolder).Msg("initial subfolder unavailable, skipping template uploads")
	}

	// [persisting]
	log.Info().Str("stage", string(StagePersisting)).Msg("stage")
	if err := p.Store.Put(rec.ProjectID, env); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	log.Info().Str("checkpoint", p.Store.Path()).Msg("project environment persisted")
	return nil
}

// persistFailed records an aborted project so the run can resume past it.
// A checkpoint write failure here is fatal for the whole run.
func (p *Pipeline) persistFailed(env *checkpoint.EnvironmentRecord, rec manifest.Record, log zerolog.Logger) error {
	env.Status = checkpoint.StatusFailed
	if err := p.Store.Put(rec.ProjectID, env); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	log.Warn().Msg("project recorded as failed, continuing with next project")
	return nil
}

// grantOwner adds one resolved owner to the team. Grants are independent:
// a conflict means already a member, anything else is logged and the other
// owner still gets its attempt.
func (p *Pipeline) grantOwner(ctx context.Context, token, groupID, role, email, userID string, log zerolog.Logger) {
	if userID == "" {
		log.Warn().Str("role", role).Str("email", email).Msg("owner identity unresolved, grant skipped")
		return
	}
	err := p.Graph.AddTeamMember(ctx, token, groupID, userID, "owner")
	p.sleep(memberPacing)
	switch {
	case err == nil:
		log.Info().Str("role", role).Str("email", email).Msg("owner granted")
	case graph.IsStatus(err, http.StatusConflict):
		log.Info().Str("role", role).Str("email", email).Msg("already a member")
	default:
		log.Warn().Err(err).Str("role", role).Str("email", email).Msg("membership grant failed")
	}
}

// importPlan parses the project's task file and runs the plan sub-pipeline.
// Input validation failures skip the plan branch without aborting the
// project; a remote failure aborts the project's remaining stages.
func (p *Pipeline) importPlan(ctx context.Context, token string, rec manifest.Record, groupID string, env *checkpoint.EnvironmentRecord, log zerolog.Logger) error {
	tasks, warnings, err := planner.ParseTaskFile(rec.PlannerCSV, p.now())
	if err != nil {
		// Bad input is confined to the plan branch; folders can still be
		// provisioned.
		log.Warn().Err(err).Str("file", rec.PlannerCSV).Msg("task input rejected, plan import skipped")
		return nil
	}

	result, err := p.Importer.Run(ctx, token, groupID, rec.ProjectName, tasks, warnings, false)
	if err != nil {
		return Classify(err, "plan import").WithProject(rec.ProjectID, StageImportingPlan)
	}

	env.PlanID = result.PlanID
	env.PlanURL = graph.PlanWebURL(p.TenantID, result.PlanID)
	env.BucketIDs = result.BucketIDs
	env.TaskCount = len(result.TaskIDs)
	return nil
}

// anchorTab pins the Planner tab to the channel. A conflict means the tab
// is already pinned; other failures only warn.
func (p *Pipeline) anchorTab(ctx context.Context, token, groupID string, env *checkpoint.EnvironmentRecord, log zerolog.Logger) {
	tab, err := p.Graph.AddPlannerTab(ctx, token, groupID, env.ChannelID, env.PlanID, p.TenantID)
	switch {
	case err == nil:
		env.TabID = tab.ID
		log.Info().Str("tab_id", tab.ID).Msg("planner tab anchored")
	case graph.IsStatus(err, http.StatusConflict):
		log.Info().Msg("planner tab already anchored")
	default:
		log.Warn().Err(err).Msg("planner tab anchor failed")
	}
}

// buildFolderTree creates the project root folder and its fixed subfolders,
// each conflict-tolerant, and returns the id of the subfolder designated
// for initial artifacts (or "" when unavailable).
func (p *Pipeline) buildFolderTree(ctx context.Context, token string, site siteRefs, rec manifest.Record, env *checkpoint.EnvironmentRecord, log zerolog.Logger) (string, error) {
	folderName := rec.FolderName()

	outcome, err := Ensure(ctx,
		func(ctx context.Context) (Resource, error) {
			item, err := p.Graph.CreateFolder(ctx, token, site.SiteID, site.RootID, folderName)
			if err != nil {
				return Resource{}, err
			}
			return Resource{ID: item.ID, URL: item.WebURL}, nil
		},
		func(ctx context.Context) (Resource, bool, error) {
			item, err := p.Graph.ItemByPath(ctx, token, site.SiteID, folderName)
			if graph.IsStatus(err, http.StatusNotFound) {
				return Resource{}, false, nil
			}
			if err != nil {
				return Resource{}, false, err
			}
			return Resource{ID: item.ID, URL: item.WebURL}, true, nil
		},
	)
	if err != nil {
		return "", Classify(err, "create project folder").WithProject(rec.ProjectID, StageBuildingFolderTree)
	}
	env.FolderID = outcome.ID
	env.FolderURL = outcome.URL
	log.Info().Str("folder", folderName).Str("outcome", string(outcome.Kind)).Msg("project folder ready")
	if !outcome.Exists() {
		return "", nil
	}

	initialID := ""
	for _, sub := range p.Config.Subfolders {
		subPath := folderName + "/" + sub
		subOutcome, err := Ensure(ctx,
			func(ctx context.Context) (Resource, error) {
				item, err := p.Graph.CreateFolder(ctx, token, site.SiteID, env.FolderID, sub)
				if err != nil {
					return Resource{}, err
				}
				return Resource{ID: item.ID}, nil
			},
			func(ctx context.Context) (Resource, bool, error) {
				item, err := p.Graph.ItemByPath(ctx, token, site.SiteID, subPath)
				if graph.IsStatus(err, http.StatusNotFound) {
					return Resource{}, false, nil
				}
				if err != nil {
					return Resource{}, false, err
				}
				return Resource{ID: item.ID}, true, nil
			},
		)
		if err != nil {
			// One bad subfolder does not block the rest of the tree.
			log.Warn().Err(err).Str("subfolder", sub).Msg("subfolder creation failed")
			continue
		}
		if subOutcome.Exists() {
			env.SubfolderIDs[sub] = subOutcome.ID
			if sub == p.Config.InitialSubfolder {
				initialID = subOutcome.ID
			}
		}
		log.Info().Str("subfolder", sub).Str("outcome", string(subOutcome.Kind)).Msg("subfolder ready")
	}
	return initialID, nil
}

// uploadTemplates pushes each configured template into the initial
// subfolder. Missing local files and upload failures only warn.
func (p *Pipeline) uploadTemplates(ctx context.Context, token string, site siteRefs, folderID string, log zerolog.Logger) {
	for _, name := range p.Config.Templates {
		path := filepath.Join(p.Config.TemplatesDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("template", path).Msg("template not found, skipped")
			continue
		}
		if _, err := p.Graph.UploadFile(ctx, token, site.SiteID, folderID, name, data); err != nil {
			log.Warn().Err(err).Str("template", name).Msg("template upload failed")
			continue
		}
		log.Info().Str("template", name).Msg("template uploaded")
	}
}
