package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const versionColumns = `id,artifact_type,artifact_id,version_number,initiative_id,parent_version_id,is_baseline,COALESCE(state,''),COALESCE(baseline_date,''),COALESCE(baselined_by,''),artifact_data,COALESCE(changed_fields,''),change_type,COALESCE(change_reason,''),created_by,created_at,COALESCE(updated_by,''),COALESCE(updated_at,'')`

func scanVersion(s scanner) (domain.ArtifactVersion, error) {
	var (
		v          domain.ArtifactVersion
		typ        string
		initiative sql.NullString
		parent     sql.NullInt64
		isBaseline int
		data       string
		changed    string
	)
	err := s.Scan(&v.ID, &typ, &v.ArtifactID, &v.VersionNumber, &initiative, &parent, &isBaseline, &v.State,
		&v.BaselineDate, &v.BaselinedBy, &data, &changed, &v.ChangeType, &v.ChangeReason,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedBy, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	v.ArtifactType = domain.ArtifactType(typ)
	v.IsBaseline = isBaseline == 1
	if initiative.Valid {
		id := initiative.String
		v.InitiativeID = &id
	}
	if parent.Valid {
		id := parent.Int64
		v.ParentVersionID = &id
	}
	payload, err := domain.DecodePayload(v.ArtifactType, []byte(data))
	if err != nil {
		return v, fmt.Errorf("version %d: %w", v.ID, err)
	}
	v.Data = payload
	if changed != "" {
		if err := json.Unmarshal([]byte(changed), &v.ChangedFields); err != nil {
			return v, fmt.Errorf("version %d changed_fields: %w", v.ID, err)
		}
	}
	return v, nil
}

func (r Repo) queryVersions(ctx context.Context, q querier, query string, args ...any) ([]domain.ArtifactVersion, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ArtifactVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) GetVersion(ctx context.Context, tx *sql.Tx, id int64) (domain.ArtifactVersion, error) {
	return scanVersion(r.q(tx).QueryRowContext(ctx, `SELECT `+versionColumns+` FROM artifact_versions WHERE id=?`, id))
}

// GetBaseline returns the current production snapshot of an artifact.
func (r Repo) GetBaseline(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, artifactID int64) (domain.ArtifactVersion, error) {
	return scanVersion(r.q(tx).QueryRowContext(ctx, `SELECT `+versionColumns+` FROM artifact_versions WHERE artifact_type=? AND artifact_id=? AND is_baseline=1`, string(t), artifactID))
}

// GetWorkingCopy returns the initiative's non-baseline row for an artifact,
// whatever its state.
func (r Repo) GetWorkingCopy(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, artifactID int64, initiativeID string) (domain.ArtifactVersion, error) {
	return scanVersion(r.q(tx).QueryRowContext(ctx, `SELECT `+versionColumns+` FROM artifact_versions WHERE artifact_type=? AND artifact_id=? AND initiative_id=? AND is_baseline=0`,
		string(t), artifactID, initiativeID))
}

func (r Repo) InsertVersion(ctx context.Context, tx *sql.Tx, v domain.ArtifactVersion) (int64, error) {
	data, err := domain.EncodePayload(v.Data)
	if err != nil {
		return 0, err
	}
	changed, err := changedFieldsJSON(v.ChangedFields)
	if err != nil {
		return 0, err
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO artifact_versions(artifact_type,artifact_id,version_number,initiative_id,parent_version_id,is_baseline,state,baseline_date,baselined_by,artifact_data,changed_fields,change_type,change_reason,created_by,created_at,updated_by,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(v.ArtifactType), v.ArtifactID, v.VersionNumber, nullableStringPtr(v.InitiativeID), nullableInt64Ptr(v.ParentVersionID),
		boolInt(v.IsBaseline), nullable(v.State), nullable(v.BaselineDate), nullable(v.BaselinedBy), string(data), changed,
		v.ChangeType, nullable(v.ChangeReason), v.CreatedBy, v.CreatedAt, nullable(v.UpdatedBy), nullable(v.UpdatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateWorkingCopy writes the mutable columns of a working copy.
func (r Repo) UpdateWorkingCopy(ctx context.Context, tx *sql.Tx, v domain.ArtifactVersion) error {
	data, err := domain.EncodePayload(v.Data)
	if err != nil {
		return err
	}
	changed, err := changedFieldsJSON(v.ChangedFields)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE artifact_versions SET artifact_data=?, changed_fields=?, version_number=?, state=?, change_reason=?, updated_by=?, updated_at=? WHERE id=? AND is_baseline=0`,
		string(data), changed, v.VersionNumber, nullable(v.State), nullable(v.ChangeReason), nullable(v.UpdatedBy), nullable(v.UpdatedAt), v.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetVersionState(ctx context.Context, tx *sql.Tx, id int64, state, actorID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE artifact_versions SET state=?, updated_by=?, updated_at=? WHERE id=?`, state, actorID, now, id)
	return err
}

// DemoteBaseline clears the baseline flag so a successor can be inserted
// without tripping the single-baseline index.
func (r Repo) DemoteBaseline(ctx context.Context, tx *sql.Tx, id int64, actorID, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE artifact_versions SET is_baseline=0, updated_by=?, updated_at=? WHERE id=? AND is_baseline=1`, actorID, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("baseline version %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r Repo) DeleteVersion(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM artifact_versions WHERE id=? AND is_baseline=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVersions returns every snapshot of one artifact, newest first.
func (r Repo) ListVersions(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]domain.ArtifactVersion, error) {
	return r.queryVersions(ctx, r.DB, `SELECT `+versionColumns+` FROM artifact_versions WHERE artifact_type=? AND artifact_id=? ORDER BY version_number DESC, id DESC`,
		string(t), artifactID)
}

// ListInitiativeVersions returns an initiative's working copies, optionally
// filtered to one type and a set of states.
func (r Repo) ListInitiativeVersions(ctx context.Context, tx *sql.Tx, initiativeID string, t domain.ArtifactType, states ...string) ([]domain.ArtifactVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM artifact_versions WHERE initiative_id=? AND is_baseline=0`
	args := []any{initiativeID}
	if t != "" {
		query += ` AND artifact_type=?`
		args = append(args, string(t))
	}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, s := range states {
			args = append(args, s)
		}
	}
	query += ` ORDER BY artifact_type, artifact_id`
	return r.queryVersions(ctx, r.q(tx), query, args...)
}

// ListOrphanedWorkingCopies returns checked-out working copies whose
// initiative holds no live lock on the artifact.
func (r Repo) ListOrphanedWorkingCopies(ctx context.Context, tx *sql.Tx, now string) ([]domain.ArtifactVersion, error) {
	return r.queryVersions(ctx, r.q(tx), `SELECT `+versionColumns+` FROM artifact_versions v
WHERE v.is_baseline=0 AND v.state=?
AND NOT EXISTS (
  SELECT 1 FROM artifact_locks l
  WHERE l.artifact_type=v.artifact_type AND l.artifact_id=v.artifact_id
  AND l.initiative_id=v.initiative_id AND l.lock_expiry>?
)
ORDER BY v.initiative_id, v.artifact_type, v.artifact_id`, domain.StateCheckedOut, now)
}

func (r Repo) InsertBaselineHistory(ctx context.Context, tx *sql.Tx, h domain.BaselineHistory) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO baseline_history(artifact_type,artifact_id,from_version_id,to_version_id,initiative_id,baselined_by,baselined_at,baseline_reason) VALUES (?,?,?,?,?,?,?,?)`,
		string(h.ArtifactType), h.ArtifactID, nullableInt64Ptr(h.FromVersionID), h.ToVersionID, nullable(h.InitiativeID), h.BaselinedBy, h.BaselinedAt, nullable(h.Reason))
	return err
}

func (r Repo) ListBaselineHistory(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]domain.BaselineHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,artifact_type,artifact_id,from_version_id,to_version_id,COALESCE(initiative_id,''),baselined_by,baselined_at,COALESCE(baseline_reason,'') FROM baseline_history WHERE artifact_type=? AND artifact_id=? ORDER BY id DESC`,
		string(t), artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BaselineHistory
	for rows.Next() {
		var h domain.BaselineHistory
		var typ string
		var from sql.NullInt64
		if err := rows.Scan(&h.ID, &typ, &h.ArtifactID, &from, &h.ToVersionID, &h.InitiativeID, &h.BaselinedBy, &h.BaselinedAt, &h.Reason); err != nil {
			return nil, err
		}
		h.ArtifactType = domain.ArtifactType(typ)
		if from.Valid {
			id := from.Int64
			h.FromVersionID = &id
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// CountBaselines reports how many baseline rows exist for an artifact.
func (r Repo) CountBaselines(ctx context.Context, t domain.ArtifactType, artifactID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM artifact_versions WHERE artifact_type=? AND artifact_id=? AND is_baseline=1`, string(t), artifactID).Scan(&n)
	return n, err
}

func changedFieldsJSON(fields []string) (any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	s, err := marshalJSON(fields)
	if err != nil {
		return nil, err
	}
	return s, nil
}
