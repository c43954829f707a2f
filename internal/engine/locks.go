package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
)

func (e Engine) ListLocks(ctx context.Context, initiativeID string) ([]domain.ArtifactLock, error) {
	return e.Repo.ListLocks(ctx, nil, initiativeID)
}

// ReleaseLock removes a lock by id. Only the holder or an admin may release
// it; the working copy is kept and shows up as an orphan until it is checked
// out again or reconciled.
func (e Engine) ReleaseLock(ctx context.Context, lockID int64, actorID string, force bool) (domain.ArtifactLock, error) {
	var l domain.ArtifactLock
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = e.Repo.GetLockByID(ctx, tx, lockID)
		if err != nil {
			return fmt.Errorf("lock %d: %w", lockID, err)
		}
		if l.LockedBy != actorID && !force {
			admin, err := e.Auth.IsAdmin(ctx, tx, actorID)
			if err != nil {
				return err
			}
			if !admin {
				return auth.ForbiddenError{Action: "release a lock held by " + l.LockedBy}
			}
		}
		if err := e.Repo.DeleteLockByID(ctx, tx, lockID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.LockReleased, l.InitiativeID, string(l.ArtifactType), fmt.Sprint(l.ArtifactID), actorID, events.EventPayload{
			"lock_id":   l.ID,
			"locked_by": l.LockedBy,
			"forced":    l.LockedBy != actorID,
		})
	})
	return l, err
}

// IsLockValid reports whether the artifact is locked by an active initiative
// and the lock has not expired.
func (e Engine) IsLockValid(ctx context.Context, t domain.ArtifactType, artifactID int64) (bool, error) {
	return e.Repo.IsLockValid(ctx, nil, t, artifactID, e.stamp())
}

// SweepResult reports one sweep pass.
type SweepResult struct {
	Expired  []domain.ArtifactLock    `json:"expired"`
	Inactive []domain.ArtifactLock    `json:"inactive_initiative"`
	Orphans  []domain.ArtifactVersion `json:"orphans"`
}

// SweepLocks deletes expired locks, then locks held by completed or cancelled
// initiatives, and reports working copies left without a live lock.
func (e Engine) SweepLocks(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult
	now := e.stamp()
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if res.Expired, err = e.Repo.DeleteExpiredLocks(ctx, tx, now); err != nil {
			return fmt.Errorf("delete expired locks: %w", err)
		}
		if res.Inactive, err = e.Repo.DeleteInactiveInitiativeLocks(ctx, tx); err != nil {
			return fmt.Errorf("delete inactive initiative locks: %w", err)
		}
		if len(res.Expired)+len(res.Inactive) == 0 {
			return nil
		}
		return e.Events.Append(ctx, tx, events.LocksSwept, "", "lock", "", SystemActor, events.EventPayload{
			"expired":             len(res.Expired),
			"inactive_initiative": len(res.Inactive),
		})
	})
	if err != nil {
		return SweepResult{}, err
	}
	e.Metrics.Swept("expired", len(res.Expired))
	e.Metrics.Swept("inactive_initiative", len(res.Inactive))
	if res.Orphans, err = e.Repo.ListOrphanedWorkingCopies(ctx, nil, now); err != nil {
		return res, fmt.Errorf("list orphaned working copies: %w", err)
	}
	e.Metrics.ObserveSweep(time.Since(start))
	return res, nil
}

// ReconcileOrphans lists checked-out working copies with no live lock. With
// apply set, the ones that were never checked in are deleted and returned.
func (e Engine) ReconcileOrphans(ctx context.Context, apply bool, actorID string) ([]domain.ArtifactVersion, error) {
	if !apply {
		return e.Repo.ListOrphanedWorkingCopies(ctx, nil, e.stamp())
	}
	var removed []domain.ArtifactVersion
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		removed = nil
		orphans, err := e.Repo.ListOrphanedWorkingCopies(ctx, tx, e.stamp())
		if err != nil {
			return err
		}
		for _, v := range orphans {
			if len(v.ChangedFields) > 0 {
				continue
			}
			if err := e.Repo.DeleteVersion(ctx, tx, v.ID); err != nil {
				return fmt.Errorf("delete orphan %d: %w", v.ID, err)
			}
			removed = append(removed, v)
		}
		if len(removed) == 0 {
			return nil
		}
		return e.Events.Append(ctx, tx, events.OrphansReconciled, "", "version", "", actorID, events.EventPayload{"removed": len(removed)})
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
