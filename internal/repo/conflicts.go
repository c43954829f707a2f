package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const conflictColumns = `id,initiative_id,artifact_type,artifact_id,baseline_version_id,initiative_version_id,conflicting_fields,conflict_details,resolution_status,COALESCE(resolution_strategy,''),resolved_data,COALESCE(resolved_by,''),COALESCE(resolved_at,''),COALESCE(resolution_notes,''),created_at,updated_at`

func scanConflict(s scanner) (domain.VersionConflict, error) {
	var (
		c        domain.VersionConflict
		typ      string
		fields   string
		details  string
		resolved sql.NullString
	)
	err := s.Scan(&c.ID, &c.InitiativeID, &typ, &c.ArtifactID, &c.BaselineVersionID, &c.InitiativeVersionID, &fields, &details,
		&c.ResolutionStatus, &c.ResolutionStrategy, &resolved, &c.ResolvedBy, &c.ResolvedAt, &c.ResolutionNotes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ArtifactType = domain.ArtifactType(typ)
	if err := json.Unmarshal([]byte(fields), &c.ConflictingFields); err != nil {
		return c, fmt.Errorf("conflict %d fields: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(details), &c.Details); err != nil {
		return c, fmt.Errorf("conflict %d details: %w", c.ID, err)
	}
	if resolved.Valid && resolved.String != "" {
		if err := json.Unmarshal([]byte(resolved.String), &c.ResolvedData); err != nil {
			return c, fmt.Errorf("conflict %d resolved data: %w", c.ID, err)
		}
	}
	return c, nil
}

func (r Repo) GetConflict(ctx context.Context, tx *sql.Tx, id int64) (domain.VersionConflict, error) {
	return scanConflict(r.q(tx).QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM version_conflicts WHERE id=?`, id))
}

func (r Repo) GetConflictFor(ctx context.Context, tx *sql.Tx, initiativeID string, t domain.ArtifactType, artifactID int64) (domain.VersionConflict, error) {
	return scanConflict(r.q(tx).QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM version_conflicts WHERE initiative_id=? AND artifact_type=? AND artifact_id=?`,
		initiativeID, string(t), artifactID))
}

// InsertConflict stores a fresh pending conflict and returns its id.
func (r Repo) InsertConflict(ctx context.Context, tx *sql.Tx, c domain.VersionConflict) (int64, error) {
	fields, details, err := conflictJSON(c)
	if err != nil {
		return 0, err
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO version_conflicts(initiative_id,artifact_type,artifact_id,baseline_version_id,initiative_version_id,conflicting_fields,conflict_details,resolution_status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.InitiativeID, string(c.ArtifactType), c.ArtifactID, c.BaselineVersionID, c.InitiativeVersionID, fields, details, domain.ConflictPending, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RefreshConflict replaces the detection output of a conflict and puts it
// back to pending, clearing any earlier resolution.
func (r Repo) RefreshConflict(ctx context.Context, tx *sql.Tx, c domain.VersionConflict) error {
	fields, details, err := conflictJSON(c)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `UPDATE version_conflicts SET baseline_version_id=?, initiative_version_id=?, conflicting_fields=?, conflict_details=?,
resolution_status=?, resolution_strategy=NULL, resolved_data=NULL, resolved_by=NULL, resolved_at=NULL, resolution_notes=NULL, updated_at=? WHERE id=?`,
		c.BaselineVersionID, c.InitiativeVersionID, fields, details, domain.ConflictPending, c.UpdatedAt, c.ID)
	return err
}

func (r Repo) ResolveConflict(ctx context.Context, tx *sql.Tx, c domain.VersionConflict) error {
	var resolved any
	if c.ResolvedData != nil {
		s, err := marshalJSON(c.ResolvedData)
		if err != nil {
			return err
		}
		resolved = s
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE version_conflicts SET resolution_status=?, resolution_strategy=?, resolved_data=?, resolved_by=?, resolved_at=?, resolution_notes=?, updated_at=? WHERE id=?`,
		domain.ConflictResolved, c.ResolutionStrategy, resolved, c.ResolvedBy, c.ResolvedAt, nullable(c.ResolutionNotes), c.ResolvedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteConflict(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM version_conflicts WHERE id=?`, id)
	return err
}

func (r Repo) DeleteInitiativeConflicts(ctx context.Context, tx *sql.Tx, initiativeID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM version_conflicts WHERE initiative_id=?`, initiativeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) ListConflicts(ctx context.Context, tx *sql.Tx, initiativeID, status string) ([]domain.VersionConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM version_conflicts WHERE initiative_id=?`
	args := []any{initiativeID}
	if status != "" {
		query += ` AND resolution_status=?`
		args = append(args, status)
	}
	query += ` ORDER BY artifact_type, artifact_id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.VersionConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountPendingConflicts(ctx context.Context, tx *sql.Tx, initiativeID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM version_conflicts WHERE initiative_id=? AND resolution_status=?`, initiativeID, domain.ConflictPending).Scan(&n)
	return n, err
}

func conflictJSON(c domain.VersionConflict) (string, string, error) {
	fields := c.ConflictingFields
	if fields == nil {
		fields = []string{}
	}
	f, err := marshalJSON(fields)
	if err != nil {
		return "", "", err
	}
	d, err := marshalJSON(c.Details)
	if err != nil {
		return "", "", err
	}
	return f, d, nil
}
