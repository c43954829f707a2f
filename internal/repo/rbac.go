package repo

import (
	"context"
	"database/sql"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) UpsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	if a.Role == "" {
		a.Role = "user"
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id,display_name,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=COALESCE(excluded.display_name, actors.display_name), role=excluded.role`,
		a.ID, nullable(a.DisplayName), a.Role, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	var a domain.Actor
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,COALESCE(display_name,''),role,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.DisplayName, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// AddParticipant inserts or re-roles a participant.
func (r Repo) AddParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO initiative_participants(initiative_id,user_id,role,added_by,added_at) VALUES (?,?,?,?,?)
ON CONFLICT(initiative_id,user_id) DO UPDATE SET role=excluded.role, added_by=excluded.added_by, added_at=excluded.added_at`,
		p.InitiativeID, p.UserID, p.Role, nullable(p.AddedBy), p.AddedAt)
	return err
}

func (r Repo) UpdateParticipantRole(ctx context.Context, tx *sql.Tx, initiativeID, userID, role string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE initiative_participants SET role=? WHERE initiative_id=? AND user_id=?`, role, initiativeID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ParticipantRole returns the user's role in the initiative or ErrNotFound.
func (r Repo) ParticipantRole(ctx context.Context, tx *sql.Tx, initiativeID, userID string) (string, error) {
	var role string
	err := r.q(tx).QueryRowContext(ctx, `SELECT role FROM initiative_participants WHERE initiative_id=? AND user_id=?`, initiativeID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) ListParticipants(ctx context.Context, tx *sql.Tx, initiativeID string) ([]domain.Participant, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT initiative_id,user_id,role,COALESCE(added_by,''),added_at FROM initiative_participants WHERE initiative_id=? ORDER BY added_at, user_id`, initiativeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.InitiativeID, &p.UserID, &p.Role, &p.AddedBy, &p.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
