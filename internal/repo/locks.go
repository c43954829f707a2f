package repo

import (
	"context"
	"database/sql"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const lockColumns = `l.id,l.artifact_type,l.artifact_id,l.initiative_id,l.locked_by,COALESCE(a.display_name,''),l.locked_at,l.lock_expiry,COALESCE(l.lock_reason,'')`

const lockFrom = ` FROM artifact_locks l LEFT JOIN actors a ON a.id=l.locked_by`

func scanLock(s scanner) (domain.ArtifactLock, error) {
	var l domain.ArtifactLock
	var typ string
	err := s.Scan(&l.ID, &typ, &l.ArtifactID, &l.InitiativeID, &l.LockedBy, &l.LockedByName, &l.LockedAt, &l.LockExpiry, &l.LockReason)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.ArtifactType = domain.ArtifactType(typ)
	return l, err
}

func (r Repo) queryLocks(ctx context.Context, q querier, query string, args ...any) ([]domain.ArtifactLock, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ArtifactLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// AcquireLock inserts the lock, or takes over the existing row when it
// already belongs to the same initiative, has expired, or belongs to an
// initiative that is no longer active. It reports false when a live lock of
// another initiative blocks the insert. The check and the write are a single
// statement.
func (r Repo) AcquireLock(ctx context.Context, tx *sql.Tx, l domain.ArtifactLock) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO artifact_locks(artifact_type,artifact_id,initiative_id,locked_by,locked_at,lock_expiry,lock_reason) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(artifact_type,artifact_id) DO UPDATE SET
  initiative_id=excluded.initiative_id,
  locked_by=excluded.locked_by,
  locked_at=excluded.locked_at,
  lock_expiry=excluded.lock_expiry,
  lock_reason=excluded.lock_reason
WHERE artifact_locks.initiative_id=excluded.initiative_id
   OR artifact_locks.lock_expiry<=excluded.locked_at
   OR artifact_locks.initiative_id IN (SELECT id FROM initiatives WHERE status<>'active')`,
		string(l.ArtifactType), l.ArtifactID, l.InitiativeID, l.LockedBy, l.LockedAt, l.LockExpiry, nullable(l.LockReason))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) GetLock(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, artifactID int64) (domain.ArtifactLock, error) {
	return scanLock(r.q(tx).QueryRowContext(ctx, `SELECT `+lockColumns+lockFrom+` WHERE l.artifact_type=? AND l.artifact_id=?`, string(t), artifactID))
}

func (r Repo) GetLockByID(ctx context.Context, tx *sql.Tx, id int64) (domain.ArtifactLock, error) {
	return scanLock(r.q(tx).QueryRowContext(ctx, `SELECT `+lockColumns+lockFrom+` WHERE l.id=?`, id))
}

// ListLocks returns locks, optionally scoped to an initiative, soonest
// expiry first.
func (r Repo) ListLocks(ctx context.Context, tx *sql.Tx, initiativeID string) ([]domain.ArtifactLock, error) {
	query := `SELECT ` + lockColumns + lockFrom
	var args []any
	if initiativeID != "" {
		query += ` WHERE l.initiative_id=?`
		args = append(args, initiativeID)
	}
	query += ` ORDER BY l.lock_expiry, l.id`
	return r.queryLocks(ctx, r.q(tx), query, args...)
}

// DeleteLock removes the lock on an artifact only if initiativeID holds it.
func (r Repo) DeleteLock(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, artifactID int64, initiativeID string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_locks WHERE artifact_type=? AND artifact_id=? AND initiative_id=?`, string(t), artifactID, initiativeID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) DeleteLockByID(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_locks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInitiativeLocks(ctx context.Context, tx *sql.Tx, initiativeID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_locks WHERE initiative_id=?`, initiativeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredLocks removes locks whose expiry is at or before now.
func (r Repo) DeleteExpiredLocks(ctx context.Context, tx *sql.Tx, now string) ([]domain.ArtifactLock, error) {
	locks, err := r.queryLocks(ctx, r.q(tx), `SELECT `+lockColumns+lockFrom+` WHERE l.lock_expiry<=?`, now)
	if err != nil || len(locks) == 0 {
		return nil, err
	}
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_locks WHERE lock_expiry<=?`, now); err != nil {
		return nil, err
	}
	return locks, nil
}

// DeleteInactiveInitiativeLocks removes locks held by completed or cancelled
// initiatives.
func (r Repo) DeleteInactiveInitiativeLocks(ctx context.Context, tx *sql.Tx) ([]domain.ArtifactLock, error) {
	const cond = `initiative_id IN (SELECT id FROM initiatives WHERE status IN ('completed','cancelled'))`
	locks, err := r.queryLocks(ctx, r.q(tx), `SELECT `+lockColumns+lockFrom+` WHERE l.`+cond)
	if err != nil || len(locks) == 0 {
		return nil, err
	}
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_locks WHERE `+cond); err != nil {
		return nil, err
	}
	return locks, nil
}

// ForeignLiveLocks returns live locks held by other initiatives on artifacts
// the given initiative has working copies of.
func (r Repo) ForeignLiveLocks(ctx context.Context, tx *sql.Tx, initiativeID, now string) ([]domain.ArtifactLock, error) {
	return r.queryLocks(ctx, r.q(tx), `SELECT `+lockColumns+lockFrom+`
JOIN artifact_versions v ON v.artifact_type=l.artifact_type AND v.artifact_id=l.artifact_id
JOIN initiatives i ON i.id=l.initiative_id
WHERE v.initiative_id=? AND v.is_baseline=0 AND v.state<>'promoted'
AND l.initiative_id<>? AND l.lock_expiry>? AND i.status='active'`, initiativeID, initiativeID, now)
}

// IsLockValid reports whether the artifact's lock is unexpired and owned by
// an active initiative.
func (r Repo) IsLockValid(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, artifactID int64, now string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM artifact_locks l JOIN initiatives i ON i.id=l.initiative_id
WHERE l.artifact_type=? AND l.artifact_id=? AND l.lock_expiry>? AND i.status='active'`, string(t), artifactID, now).Scan(&n)
	return n > 0, err
}
