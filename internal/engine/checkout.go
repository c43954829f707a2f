package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
	"github.com/dillipm021073/arc-studio-sub001/internal/merge"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// Checkout locks the artifact for the initiative and returns its working
// copy. Checking out an artifact the initiative already holds returns the
// existing copy and refreshes the lock.
func (e Engine) Checkout(ctx context.Context, t domain.ArtifactType, artifactID int64, initiativeID, actorID string) (domain.ArtifactVersion, error) {
	var (
		wc     domain.ArtifactVersion
		reused bool
	)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		reused = false
		if err := e.Auth.EnsureActor(ctx, tx, actorID); err != nil {
			return err
		}
		if _, err := e.activeInitiative(ctx, tx, initiativeID); err != nil {
			return err
		}
		now := e.now().UTC()
		lock := domain.ArtifactLock{
			ArtifactType: t,
			ArtifactID:   artifactID,
			InitiativeID: initiativeID,
			LockedBy:     actorID,
			LockedAt:     now.Format(timeLayout),
			LockExpiry:   now.Add(e.lockTTL()).Format(timeLayout),
			LockReason:   "Checked out for initiative " + initiativeID,
		}
		ok, err := e.Repo.AcquireLock(ctx, tx, lock)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			held, err := e.Repo.GetLock(ctx, tx, t, artifactID)
			if err != nil {
				return fmt.Errorf("read conflicting lock: %w", err)
			}
			return LockConflictError{
				ArtifactType: t,
				ArtifactID:   artifactID,
				LockedBy:     held.LockedBy,
				LockedByUser: held.LockedByName,
				InitiativeID: held.InitiativeID,
				ExpiresAt:    held.LockExpiry,
			}
		}

		wc, err = e.Repo.GetWorkingCopy(ctx, tx, t, artifactID, initiativeID)
		switch {
		case err == nil:
			reused = true
			if wc.State == domain.StatePromoted {
				return preconditionf("%s %d was already promoted by initiative %s", t, artifactID, initiativeID)
			}
			if wc.State != domain.StateCheckedOut {
				if err := e.Repo.SetVersionState(ctx, tx, wc.ID, domain.StateCheckedOut, actorID, lock.LockedAt); err != nil {
					return err
				}
				wc.State = domain.StateCheckedOut
				wc.UpdatedBy = actorID
				wc.UpdatedAt = lock.LockedAt
			}
		case errors.Is(err, repo.ErrNotFound):
			base, err := e.ensureBaseline(ctx, tx, t, artifactID, actorID)
			if err != nil {
				return err
			}
			wc = domain.ArtifactVersion{
				ArtifactType:    t,
				ArtifactID:      artifactID,
				VersionNumber:   base.VersionNumber + 1,
				InitiativeID:    ptr(initiativeID),
				ParentVersionID: ptr(base.ID),
				State:           domain.StateCheckedOut,
				Data:            base.Data,
				ChangeType:      domain.ChangeUpdate,
				ChangeReason:    "Checked out for initiative " + initiativeID,
				CreatedBy:       actorID,
				CreatedAt:       lock.LockedAt,
			}
			wc.ID, err = e.Repo.InsertVersion(ctx, tx, wc)
			if err != nil {
				return fmt.Errorf("insert working copy: %w", err)
			}
		default:
			return err
		}
		return e.Events.Append(ctx, tx, events.ArtifactCheckedOut, initiativeID, string(t), fmt.Sprint(artifactID), actorID, events.EventPayload{
			"version_id":  wc.ID,
			"lock_expiry": lock.LockExpiry,
			"reused":      reused,
		})
	})
	switch {
	case err == nil && reused:
		e.Metrics.Checkout("reused")
	case err == nil:
		e.Metrics.Checkout("ok")
	case errors.As(err, &LockConflictError{}):
		e.Metrics.Checkout("lock_conflict")
	default:
		e.Metrics.Checkout("error")
	}
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	return wc, nil
}

// CheckinOptions are parameters for committing edits to a working copy.
type CheckinOptions struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	InitiativeID string
	ActorID      string
	Data         map[string]any
	Reason       string
}

// Checkin replaces the working copy's payload, advances its version, and
// releases the initiative's lock. When configured, conflict detection for the
// initiative runs after the commit; its failure does not fail the checkin.
func (e Engine) Checkin(ctx context.Context, opts CheckinOptions) (domain.ArtifactVersion, error) {
	if opts.Data == nil {
		return domain.ArtifactVersion{}, errors.New("artifact data is required")
	}
	payload, err := domain.FromFields(opts.ArtifactType, opts.ArtifactID, opts.Data)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	var wc domain.ArtifactVersion
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		wc, err = e.Repo.GetWorkingCopy(ctx, tx, opts.ArtifactType, opts.ArtifactID, opts.InitiativeID)
		if err != nil {
			return fmt.Errorf("working copy of %s %d in %s: %w", opts.ArtifactType, opts.ArtifactID, opts.InitiativeID, err)
		}
		if wc.State == domain.StatePromoted {
			return preconditionf("%s %d was already promoted", opts.ArtifactType, opts.ArtifactID)
		}
		now := e.stamp()
		lock, err := e.Repo.GetLock(ctx, tx, opts.ArtifactType, opts.ArtifactID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err == nil && lock.InitiativeID != opts.InitiativeID {
			valid, err := e.Repo.IsLockValid(ctx, tx, opts.ArtifactType, opts.ArtifactID, now)
			if err != nil {
				return err
			}
			if valid {
				return preconditionf("%s %d is checked out by initiative %s", opts.ArtifactType, opts.ArtifactID, lock.InitiativeID)
			}
		}

		before, err := domain.Fields(wc.Data)
		if err != nil {
			return err
		}
		after, err := domain.Fields(payload)
		if err != nil {
			return err
		}
		wc.Data = payload
		wc.ChangedFields = changedFields(before, after)
		wc.VersionNumber++
		wc.State = domain.StateCheckedIn
		wc.ChangeReason = opts.Reason
		wc.UpdatedBy = opts.ActorID
		wc.UpdatedAt = now
		if err := e.Repo.UpdateWorkingCopy(ctx, tx, wc); err != nil {
			return err
		}
		if _, err := e.Repo.DeleteLock(ctx, tx, opts.ArtifactType, opts.ArtifactID, opts.InitiativeID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ArtifactCheckedIn, opts.InitiativeID, string(opts.ArtifactType), fmt.Sprint(opts.ArtifactID), opts.ActorID, events.EventPayload{
			"version_id":     wc.ID,
			"version_number": wc.VersionNumber,
			"changed_fields": wc.ChangedFields,
		})
	})
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	e.Metrics.Checkin()
	if e.Config != nil && e.Config.Conflicts.DetectOnCheckin {
		if _, err := e.DetectConflicts(ctx, opts.InitiativeID, opts.ActorID); err != nil {
			e.log().WithError(err).WithFields(logrus.Fields{
				"initiative": opts.InitiativeID,
				"artifact":   artifactEntity(opts.ArtifactType, opts.ArtifactID),
			}).Warn("conflict detection after checkin failed")
		}
	}
	return wc, nil
}

// changedFields lists the top-level keys whose values differ, in key order.
func changedFields(before, after map[string]any) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range []map[string]any{before, after} {
		for k := range m {
			if seen[k] {
				continue
			}
			seen[k] = true
			if !merge.Equal(before[k], after[k]) {
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// CancelCheckout discards working copies and their locks. An artifactID of
// zero cancels every checkout of the type in the initiative the actor may
// cancel; a named artifact the actor does not own is forbidden.
func (e Engine) CancelCheckout(ctx context.Context, t domain.ArtifactType, artifactID int64, initiativeID, actorID string, force bool) (int, error) {
	cancelled := 0
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cancelled = 0
		admin, err := e.Auth.IsAdmin(ctx, tx, actorID)
		if err != nil {
			return err
		}
		admin = admin || force

		var targets []domain.ArtifactVersion
		if artifactID > 0 {
			wc, err := e.Repo.GetWorkingCopy(ctx, tx, t, artifactID, initiativeID)
			if err != nil {
				return fmt.Errorf("working copy of %s %d in %s: %w", t, artifactID, initiativeID, err)
			}
			if wc.State == domain.StatePromoted {
				return preconditionf("%s %d was already promoted", t, artifactID)
			}
			targets = append(targets, wc)
		} else {
			targets, err = e.Repo.ListInitiativeVersions(ctx, tx, initiativeID, t, domain.StateCheckedOut)
			if err != nil {
				return err
			}
		}

		for _, wc := range targets {
			owner, err := e.checkoutOwner(ctx, tx, wc)
			if err != nil {
				return err
			}
			if owner != actorID && !admin {
				if artifactID > 0 {
					return auth.ForbiddenError{Action: "cancel a checkout owned by " + owner}
				}
				continue
			}
			if _, err := e.Repo.DeleteLock(ctx, tx, wc.ArtifactType, wc.ArtifactID, initiativeID); err != nil {
				return err
			}
			if err := e.Repo.DeleteVersion(ctx, tx, wc.ID); err != nil {
				return err
			}
			if err := e.Events.Append(ctx, tx, events.CheckoutCancelled, initiativeID, string(wc.ArtifactType), fmt.Sprint(wc.ArtifactID), actorID, events.EventPayload{"version_id": wc.ID}); err != nil {
				return err
			}
			cancelled++
		}
		if cancelled == 0 {
			return fmt.Errorf("checkouts of %s in %s: %w", t, initiativeID, repo.ErrNotFound)
		}
		return nil
	})
	return cancelled, err
}

// checkoutOwner is the holder of the initiative's lock on the copy, or the
// copy's creator once the lock is gone.
func (e Engine) checkoutOwner(ctx context.Context, tx *sql.Tx, wc domain.ArtifactVersion) (string, error) {
	lock, err := e.Repo.GetLock(ctx, tx, wc.ArtifactType, wc.ArtifactID)
	switch {
	case err == nil && lock.InitiativeID == wc.Initiative():
		return lock.LockedBy, nil
	case err == nil, errors.Is(err, repo.ErrNotFound):
		return wc.CreatedBy, nil
	}
	return "", err
}
