package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/conflict"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// Resolution strategies accepted by ResolveConflict.
const (
	StrategyAcceptBaseline = "accept_baseline"
	StrategyKeepInitiative = "keep_initiative"
	StrategyManualMerge    = "manual_merge"
	StrategyAutoMerge      = "auto_merge"
)

// relations is what the store knows about an artifact's neighbours, read
// before the detection transaction opens.
type relations struct {
	dependents []conflict.Dependent
	endpoints  []int64
}

func (e Engine) relationsOf(ctx context.Context, t domain.ArtifactType, id int64) (relations, error) {
	var rel relations
	links, err := e.Repo.DependenciesTo(ctx, t, id)
	if err != nil {
		return rel, err
	}
	for _, l := range links {
		rel.dependents = append(rel.dependents, conflict.Dependent{ArtifactType: l.ArtifactType, ArtifactID: l.ArtifactID, Strength: l.Strength})
	}
	if t != domain.ArtifactInterface {
		return rel, nil
	}
	iface, err := e.Repo.GetInterfaceLink(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return rel, nil
	}
	if err != nil {
		return rel, err
	}
	for _, app := range []*int64{iface.ProviderID, iface.ConsumerID} {
		if app != nil {
			rel.endpoints = append(rel.endpoints, *app)
		}
	}
	return rel, nil
}

// DetectConflicts runs three-way detection over every open working copy of
// the initiative and reconciles the stored conflict rows: new conflicts are
// inserted, pending rows refreshed, resolved rows reopened when the baseline
// moved again, and pending rows whose conflicts vanished deleted.
func (e Engine) DetectConflicts(ctx context.Context, initiativeID, actorID string) ([]domain.VersionConflict, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	copies, err := e.Repo.ListInitiativeVersions(ctx, nil, initiativeID, "", domain.StateCheckedOut, domain.StateCheckedIn)
	if err != nil {
		return nil, err
	}
	rels := make(map[int64]relations, len(copies))
	for _, wc := range copies {
		rel, err := e.relationsOf(ctx, wc.ArtifactType, wc.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("relations of %s: %w", artifactEntity(wc.ArtifactType, wc.ArtifactID), err)
		}
		rels[wc.ID] = rel
	}

	var detected []string
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		detected = detected[:0]
		for _, wc := range copies {
			severities, err := e.detectOne(ctx, tx, wc, rels[wc.ID], actorID)
			if err != nil {
				return fmt.Errorf("detect %s: %w", artifactEntity(wc.ArtifactType, wc.ArtifactID), err)
			}
			detected = append(detected, severities...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range detected {
		e.Metrics.Conflict(s)
	}
	return e.Repo.ListConflicts(ctx, nil, initiativeID, "")
}

// detectOne reconciles the conflict row of one working copy and returns the
// severities of freshly recorded field conflicts.
func (e Engine) detectOne(ctx context.Context, tx *sql.Tx, wc domain.ArtifactVersion, rel relations, actorID string) ([]string, error) {
	base, err := e.Repo.GetBaseline(ctx, tx, wc.ArtifactType, wc.ArtifactID)
	if err != nil {
		return nil, err
	}
	original := base
	if wc.ParentVersionID != nil && *wc.ParentVersionID != base.ID {
		original, err = e.Repo.GetVersion(ctx, tx, *wc.ParentVersionID)
		if err != nil {
			return nil, err
		}
	}
	in := conflict.Input{ArtifactType: wc.ArtifactType, Dependents: rel.dependents, Endpoints: rel.endpoints}
	if in.Original, err = domain.Fields(original.Data); err != nil {
		return nil, err
	}
	if in.Baseline, err = domain.Fields(base.Data); err != nil {
		return nil, err
	}
	if in.Initiative, err = domain.Fields(wc.Data); err != nil {
		return nil, err
	}
	report := conflict.Analyze(in)

	existing, err := e.Repo.GetConflictFor(ctx, tx, wc.Initiative(), wc.ArtifactType, wc.ArtifactID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	found := err == nil
	if len(report.Fields) == 0 {
		if found && existing.ResolutionStatus == domain.ConflictPending {
			return nil, e.Repo.DeleteConflict(ctx, tx, existing.ID)
		}
		return nil, nil
	}
	if found && existing.ResolutionStatus == domain.ConflictResolved && existing.BaselineVersionID == base.ID {
		return nil, nil
	}

	now := e.stamp()
	c := domain.VersionConflict{
		ID:                  existing.ID,
		InitiativeID:        wc.Initiative(),
		ArtifactType:        wc.ArtifactType,
		ArtifactID:          wc.ArtifactID,
		BaselineVersionID:   base.ID,
		InitiativeVersionID: wc.ID,
		Details:             report,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, f := range report.Fields {
		c.ConflictingFields = append(c.ConflictingFields, f.Field)
	}
	if found {
		err = e.Repo.RefreshConflict(ctx, tx, c)
	} else {
		c.ID, err = e.Repo.InsertConflict(ctx, tx, c)
	}
	if err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.ConflictDetected, c.InitiativeID, "conflict", fmt.Sprint(c.ID), actorID, events.EventPayload{
		"artifact":           artifactEntity(c.ArtifactType, c.ArtifactID),
		"fields":             c.ConflictingFields,
		"risk_score":         report.RiskScore,
		"suggested_strategy": report.SuggestedStrategy,
	}); err != nil {
		return nil, err
	}
	severities := make([]string, 0, len(report.Fields))
	for _, f := range report.Fields {
		severities = append(severities, f.Severity)
	}
	return severities, nil
}

func (e Engine) ListConflicts(ctx context.Context, initiativeID, status string) ([]domain.VersionConflict, error) {
	return e.Repo.ListConflicts(ctx, nil, initiativeID, status)
}

// ResolveOptions are parameters for resolving a conflict.
type ResolveOptions struct {
	ConflictID   int64
	Strategy     string
	ResolvedData map[string]any
	ActorID      string
	Notes        string
}

// ResolveConflict settles a pending conflict. The resolved payload is stored
// on the conflict and used at promotion. Every strategy except
// accept_baseline also writes it into the working copy.
func (e Engine) ResolveConflict(ctx context.Context, opts ResolveOptions) (domain.VersionConflict, error) {
	switch opts.Strategy {
	case StrategyAcceptBaseline, StrategyKeepInitiative, StrategyAutoMerge:
	case StrategyManualMerge:
		if opts.ResolvedData == nil {
			return domain.VersionConflict{}, errors.New("manual_merge requires resolved data")
		}
	default:
		return domain.VersionConflict{}, fmt.Errorf("invalid resolution strategy %q", opts.Strategy)
	}
	var c domain.VersionConflict
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = e.Repo.GetConflict(ctx, tx, opts.ConflictID)
		if err != nil {
			return fmt.Errorf("conflict %d: %w", opts.ConflictID, err)
		}
		if c.ResolutionStatus == domain.ConflictResolved {
			return preconditionf("conflict %d is already resolved", c.ID)
		}
		snaps, err := e.conflictSnapshots(ctx, tx, c)
		if err != nil {
			return err
		}
		resolved, err := resolvePayload(c, snaps, opts)
		if err != nil {
			return err
		}
		fields, err := domain.Fields(resolved)
		if err != nil {
			return err
		}
		now := e.stamp()
		c.ResolutionStatus = domain.ConflictResolved
		c.ResolutionStrategy = opts.Strategy
		c.ResolvedData = fields
		c.ResolvedBy = opts.ActorID
		c.ResolvedAt = now
		c.ResolutionNotes = opts.Notes
		c.UpdatedAt = now
		if err := e.Repo.ResolveConflict(ctx, tx, c); err != nil {
			return err
		}
		if opts.Strategy != StrategyAcceptBaseline {
			wc := snaps.working
			wc.Data = resolved
			wc.UpdatedBy = opts.ActorID
			wc.UpdatedAt = now
			if err := e.Repo.UpdateWorkingCopy(ctx, tx, wc); err != nil {
				return fmt.Errorf("update working copy: %w", err)
			}
		}
		return e.Events.Append(ctx, tx, events.ConflictResolved, c.InitiativeID, "conflict", fmt.Sprint(c.ID), opts.ActorID, events.EventPayload{
			"strategy": opts.Strategy,
			"artifact": artifactEntity(c.ArtifactType, c.ArtifactID),
		})
	})
	if err != nil {
		return domain.VersionConflict{}, err
	}
	return c, nil
}

// AutoResolveConflict resolves with auto_merge.
func (e Engine) AutoResolveConflict(ctx context.Context, conflictID int64, actorID string) (domain.VersionConflict, error) {
	return e.ResolveConflict(ctx, ResolveOptions{
		ConflictID: conflictID,
		Strategy:   StrategyAutoMerge,
		ActorID:    actorID,
		Notes:      "Automatically resolved",
	})
}

type snapshots struct {
	original domain.ArtifactVersion
	baseline domain.ArtifactVersion
	working  domain.ArtifactVersion
}

func (e Engine) conflictSnapshots(ctx context.Context, tx *sql.Tx, c domain.VersionConflict) (snapshots, error) {
	var s snapshots
	var err error
	if s.working, err = e.Repo.GetVersion(ctx, tx, c.InitiativeVersionID); err != nil {
		return s, fmt.Errorf("working copy %d: %w", c.InitiativeVersionID, err)
	}
	if s.baseline, err = e.Repo.GetVersion(ctx, tx, c.BaselineVersionID); err != nil {
		return s, fmt.Errorf("baseline %d: %w", c.BaselineVersionID, err)
	}
	s.original = s.baseline
	if s.working.ParentVersionID != nil {
		if s.original, err = e.Repo.GetVersion(ctx, tx, *s.working.ParentVersionID); err != nil {
			return s, fmt.Errorf("parent version %d: %w", *s.working.ParentVersionID, err)
		}
	}
	return s, nil
}

func resolvePayload(c domain.VersionConflict, s snapshots, opts ResolveOptions) (domain.Payload, error) {
	var pick conflict.Picker
	switch opts.Strategy {
	case StrategyManualMerge:
		return domain.FromFields(c.ArtifactType, c.ArtifactID, opts.ResolvedData)
	case StrategyAcceptBaseline:
		pick = conflict.TakeBaseline
	case StrategyKeepInitiative:
		pick = conflict.TakeInitiative
	case StrategyAutoMerge:
		if c.Details.SuggestedStrategy != conflict.StrategyAuto && !conflict.AllAutoResolvable(c.Details.Fields) {
			return nil, ErrNotAutoResolvable
		}
		pick = conflict.AutoValue(c.ArtifactType)
	}
	p, unresolved, err := conflict.ResolvePayload(s.original.Data, s.baseline.Data, s.working.Data, pick)
	if err != nil {
		return nil, err
	}
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrNotAutoResolvable, unresolved)
	}
	return p, nil
}

// ConflictAnalysis is a stored conflict plus a preview of what auto_merge
// would produce.
type ConflictAnalysis struct {
	Conflict       domain.VersionConflict `json:"conflict"`
	AutoResolvable bool                   `json:"auto_resolvable"`
	Preview        map[string]any         `json:"auto_merge_preview,omitempty"`
	Unresolved     []string               `json:"unresolved_fields,omitempty"`
}

func (e Engine) GetConflictAnalysis(ctx context.Context, conflictID int64) (ConflictAnalysis, error) {
	c, err := e.Repo.GetConflict(ctx, nil, conflictID)
	if err != nil {
		return ConflictAnalysis{}, fmt.Errorf("conflict %d: %w", conflictID, err)
	}
	a := ConflictAnalysis{
		Conflict:       c,
		AutoResolvable: c.Details.SuggestedStrategy == conflict.StrategyAuto || conflict.AllAutoResolvable(c.Details.Fields),
	}
	if !a.AutoResolvable {
		return a, nil
	}
	s, err := e.conflictSnapshots(ctx, nil, c)
	if err != nil {
		return a, err
	}
	p, unresolved, err := conflict.ResolvePayload(s.original.Data, s.baseline.Data, s.working.Data, conflict.AutoValue(c.ArtifactType))
	if err != nil {
		return a, err
	}
	a.Unresolved = unresolved
	if a.Preview, err = domain.Fields(p); err != nil {
		return a, err
	}
	return a, nil
}
