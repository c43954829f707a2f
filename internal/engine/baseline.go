package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/conflict"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// BaselineResult lists the baselines an initiative produced.
type BaselineResult struct {
	InitiativeID string                   `json:"initiative_id"`
	Baselines    []domain.ArtifactVersion `json:"baselines"`
	LocksRemoved int64                    `json:"locks_removed"`
}

// BaselineInitiative promotes every working copy of the initiative to a new
// baseline and completes the initiative. The whole promotion is one
// transaction. It fails while conflicts are pending or another initiative
// holds a live lock on one of the artifacts.
func (e Engine) BaselineInitiative(ctx context.Context, initiativeID, actorID, reason string, force bool) (BaselineResult, error) {
	if _, err := e.activeInitiative(ctx, nil, initiativeID); err != nil {
		return BaselineResult{}, err
	}
	if err := e.Auth.RequireRole(ctx, nil, initiativeID, actorID, "baseline the initiative", force, domain.RoleLead, domain.RoleArchitect); err != nil {
		return BaselineResult{}, err
	}
	if _, err := e.DetectConflicts(ctx, initiativeID, actorID); err != nil {
		return BaselineResult{}, err
	}
	if reason == "" {
		reason = "Baselined from initiative " + initiativeID
	}
	res := BaselineResult{InitiativeID: initiativeID}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		res.Baselines = nil
		if _, err := e.activeInitiative(ctx, tx, initiativeID); err != nil {
			return err
		}
		pending, err := e.Repo.CountPendingConflicts(ctx, tx, initiativeID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return preconditionf("initiative %s has %d unresolved conflicts", initiativeID, pending)
		}
		now := e.stamp()
		foreign, err := e.Repo.ForeignLiveLocks(ctx, tx, initiativeID, now)
		if err != nil {
			return err
		}
		if len(foreign) > 0 {
			held := make([]string, 0, len(foreign))
			for _, l := range foreign {
				held = append(held, fmt.Sprintf("%s by %s", artifactEntity(l.ArtifactType, l.ArtifactID), l.InitiativeID))
			}
			return preconditionf("artifacts locked by other initiatives: %s", strings.Join(held, ", "))
		}

		copies, err := e.Repo.ListInitiativeVersions(ctx, tx, initiativeID, "", domain.StateCheckedOut, domain.StateCheckedIn)
		if err != nil {
			return err
		}
		for _, wc := range copies {
			nb, err := e.promote(ctx, tx, wc, actorID, reason, now)
			if err != nil {
				return fmt.Errorf("promote %s: %w", artifactEntity(wc.ArtifactType, wc.ArtifactID), err)
			}
			res.Baselines = append(res.Baselines, nb)
		}

		if err := e.Repo.UpdateInitiativeStatus(ctx, tx, initiativeID, domain.InitiativeCompleted, actorID, now, now); err != nil {
			return err
		}
		if res.LocksRemoved, err = e.Repo.DeleteInitiativeLocks(ctx, tx, initiativeID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.InitiativeCompleted, initiativeID, "initiative", initiativeID, actorID, events.EventPayload{
			"baselined":     len(res.Baselines),
			"locks_removed": res.LocksRemoved,
		})
	})
	if err != nil {
		return BaselineResult{}, err
	}
	e.Metrics.Baselined(len(res.Baselines))
	return res, nil
}

// promote replaces the artifact's baseline with the working copy's payload.
// A resolved conflict's payload wins over the raw working data. When the
// baseline moved since checkout, changes made on the baseline side are
// carried over by a three-way merge.
func (e Engine) promote(ctx context.Context, tx *sql.Tx, wc domain.ArtifactVersion, actorID, reason, now string) (domain.ArtifactVersion, error) {
	base, err := e.Repo.GetBaseline(ctx, tx, wc.ArtifactType, wc.ArtifactID)
	if err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("baseline: %w", err)
	}
	payload, err := e.promotedPayload(ctx, tx, wc, base)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	if err := e.Repo.DemoteBaseline(ctx, tx, base.ID, actorID, now); err != nil {
		return domain.ArtifactVersion{}, err
	}
	nb := domain.ArtifactVersion{
		ArtifactType:    wc.ArtifactType,
		ArtifactID:      wc.ArtifactID,
		VersionNumber:   base.VersionNumber + 1,
		ParentVersionID: ptr(base.ID),
		IsBaseline:      true,
		BaselineDate:    now,
		BaselinedBy:     actorID,
		Data:            payload,
		ChangedFields:   wc.ChangedFields,
		ChangeType:      domain.ChangeUpdate,
		ChangeReason:    reason,
		CreatedBy:       actorID,
		CreatedAt:       now,
	}
	if nb.ID, err = e.Repo.InsertVersion(ctx, tx, nb); err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("insert baseline: %w", err)
	}
	if err := e.Repo.CarryDependencies(ctx, tx, base.ID, nb.ID); err != nil {
		return domain.ArtifactVersion{}, err
	}
	if err := e.Repo.InsertBaselineHistory(ctx, tx, domain.BaselineHistory{
		ArtifactType:  wc.ArtifactType,
		ArtifactID:    wc.ArtifactID,
		FromVersionID: ptr(base.ID),
		ToVersionID:   nb.ID,
		InitiativeID:  wc.Initiative(),
		BaselinedBy:   actorID,
		BaselinedAt:   now,
		Reason:        reason,
	}); err != nil {
		return domain.ArtifactVersion{}, err
	}
	if err := e.Repo.UpsertCatalog(ctx, tx, payload); err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("write back catalog: %w", err)
	}
	if err := e.Repo.SetVersionState(ctx, tx, wc.ID, domain.StatePromoted, actorID, now); err != nil {
		return domain.ArtifactVersion{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ArtifactBaselined, wc.Initiative(), string(wc.ArtifactType), fmt.Sprint(wc.ArtifactID), actorID, events.EventPayload{
		"from_version_id": base.ID,
		"to_version_id":   nb.ID,
		"version_number":  nb.VersionNumber,
	}); err != nil {
		return domain.ArtifactVersion{}, err
	}
	return nb, nil
}

func (e Engine) promotedPayload(ctx context.Context, tx *sql.Tx, wc, base domain.ArtifactVersion) (domain.Payload, error) {
	c, err := e.Repo.GetConflictFor(ctx, tx, wc.Initiative(), wc.ArtifactType, wc.ArtifactID)
	switch {
	case err == nil && c.ResolutionStatus == domain.ConflictResolved && c.ResolvedData != nil:
		return domain.FromFields(wc.ArtifactType, wc.ArtifactID, c.ResolvedData)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	if wc.ParentVersionID == nil || *wc.ParentVersionID == base.ID {
		return wc.Data, nil
	}
	original, err := e.Repo.GetVersion(ctx, tx, *wc.ParentVersionID)
	if err != nil {
		return nil, fmt.Errorf("parent version: %w", err)
	}
	merged, _, err := conflict.ResolvePayload(original.Data, base.Data, wc.Data, conflict.TakeInitiative)
	return merged, err
}

func (e Engine) ListVersions(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]domain.ArtifactVersion, error) {
	return e.Repo.ListVersions(ctx, t, artifactID)
}

func (e Engine) GetBaseline(ctx context.Context, t domain.ArtifactType, artifactID int64) (domain.ArtifactVersion, error) {
	v, err := e.Repo.GetBaseline(ctx, nil, t, artifactID)
	if err != nil {
		return v, fmt.Errorf("baseline of %s %d: %w", t, artifactID, err)
	}
	return v, nil
}

// ListInitiativeVersions returns the initiative's working copies in every
// state.
func (e Engine) ListInitiativeVersions(ctx context.Context, initiativeID string) ([]domain.ArtifactVersion, error) {
	return e.Repo.ListInitiativeVersions(ctx, nil, initiativeID, "")
}

func (e Engine) BaselineHistory(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]domain.BaselineHistory, error) {
	return e.Repo.ListBaselineHistory(ctx, t, artifactID)
}
