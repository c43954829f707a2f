package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// RoleAdmin is the actor role allowed to override ownership checks.
const RoleAdmin = "admin"

// ForbiddenError indicates the actor may not perform an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// Service provides role checks backed by the actors and participants tables.
type Service struct {
	Repo repo.Repo
}

func (s Service) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	return s.Repo.EnsureActor(ctx, tx, actorID, time.Now().UTC().Format(time.RFC3339))
}

// IsAdmin reports whether the actor carries the admin role. Unknown actors
// are not admins.
func (s Service) IsAdmin(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	a, err := s.Repo.GetActor(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.Role == RoleAdmin, nil
}

// ParticipantRole returns the actor's role in the initiative, or "" when the
// actor does not participate.
func (s Service) ParticipantRole(ctx context.Context, tx *sql.Tx, initiativeID, actorID string) (string, error) {
	role, err := s.Repo.ParticipantRole(ctx, tx, initiativeID, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return role, err
}

// RequireRole passes when force is set, the actor is an admin, or the actor
// holds one of roles in the initiative.
func (s Service) RequireRole(ctx context.Context, tx *sql.Tx, initiativeID, actorID, action string, force bool, roles ...string) error {
	if force {
		return nil
	}
	admin, err := s.IsAdmin(ctx, tx, actorID)
	if err != nil || admin {
		return err
	}
	role, err := s.ParticipantRole(ctx, tx, initiativeID, actorID)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if role == r {
			return nil
		}
	}
	return ForbiddenError{Action: action}
}
