package repo

import (
	"context"
	"database/sql"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const initiativeColumns = `id,name,COALESCE(description,''),COALESCE(business_justification,''),status,priority,COALESCE(start_date,''),COALESCE(target_completion_date,''),COALESCE(actual_completion_date,''),created_by,created_at,COALESCE(updated_by,''),COALESCE(updated_at,'')`

func scanInitiative(s scanner) (domain.Initiative, error) {
	var in domain.Initiative
	err := s.Scan(&in.ID, &in.Name, &in.Description, &in.BusinessJustification, &in.Status, &in.Priority,
		&in.StartDate, &in.TargetCompletionDate, &in.ActualCompletionDate, &in.CreatedBy, &in.CreatedAt, &in.UpdatedBy, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	return in, err
}

func (r Repo) InsertInitiative(ctx context.Context, tx *sql.Tx, in domain.Initiative) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO initiatives(id,name,description,business_justification,status,priority,start_date,target_completion_date,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.Name, nullable(in.Description), nullable(in.BusinessJustification), in.Status, in.Priority,
		nullable(in.StartDate), nullable(in.TargetCompletionDate), in.CreatedBy, in.CreatedAt)
	return err
}

func (r Repo) GetInitiative(ctx context.Context, tx *sql.Tx, id string) (domain.Initiative, error) {
	return scanInitiative(r.q(tx).QueryRowContext(ctx, `SELECT `+initiativeColumns+` FROM initiatives WHERE id=?`, id))
}

func (r Repo) ListInitiatives(ctx context.Context, status string) ([]domain.Initiative, error) {
	query := `SELECT ` + initiativeColumns + ` FROM initiatives`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Initiative
	for rows.Next() {
		in, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// UpdateInitiativeStatus moves the initiative to status. completedAt is only
// written when non-empty.
func (r Repo) UpdateInitiativeStatus(ctx context.Context, tx *sql.Tx, id, status, actorID, now, completedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE initiatives SET status=?, updated_by=?, updated_at=?, actual_completion_date=COALESCE(?, actual_completion_date) WHERE id=?`,
		status, actorID, now, nullable(completedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
