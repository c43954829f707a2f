package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
)

var participantRoles = []string{domain.RoleLead, domain.RoleArchitect, domain.RoleDeveloper, domain.RoleReviewer}

var priorities = []string{"low", "medium", "high", "critical"}

// InitiativeCreateOptions are parameters for creating an initiative.
type InitiativeCreateOptions struct {
	Name                  string
	Description           string
	BusinessJustification string
	Priority              string
	TargetCompletionDate  string
	ActorID               string
}

// CreateInitiative opens an active initiative and makes its creator the
// lead.
func (e Engine) CreateInitiative(ctx context.Context, opts InitiativeCreateOptions) (domain.Initiative, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Initiative{}, errors.New("name is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !slices.Contains(priorities, opts.Priority) {
		return domain.Initiative{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	now := e.now().UTC()
	stamp := e.stamp()
	in := domain.Initiative{
		ID:                    initiativeID(now.Format("20060102")),
		Name:                  strings.TrimSpace(opts.Name),
		Description:           opts.Description,
		BusinessJustification: opts.BusinessJustification,
		Status:                domain.InitiativeActive,
		Priority:              opts.Priority,
		StartDate:             stamp,
		TargetCompletionDate:  opts.TargetCompletionDate,
		CreatedBy:             opts.ActorID,
		CreatedAt:             stamp,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.EnsureActor(ctx, tx, opts.ActorID); err != nil {
			return err
		}
		if err := e.Repo.InsertInitiative(ctx, tx, in); err != nil {
			return fmt.Errorf("insert initiative: %w", err)
		}
		if err := e.Repo.AddParticipant(ctx, tx, domain.Participant{
			InitiativeID: in.ID,
			UserID:       opts.ActorID,
			Role:         domain.RoleLead,
			AddedBy:      opts.ActorID,
			AddedAt:      stamp,
		}); err != nil {
			return fmt.Errorf("add lead: %w", err)
		}
		return e.Events.Append(ctx, tx, events.InitiativeCreated, in.ID, "initiative", in.ID, opts.ActorID, events.EventPayload{"name": in.Name, "priority": in.Priority})
	})
	if err != nil {
		return domain.Initiative{}, err
	}
	return in, nil
}

func initiativeID(day string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "INIT-" + day + "-" + strings.ToUpper(hex[:8])
}

func (e Engine) GetInitiative(ctx context.Context, id string) (domain.Initiative, error) {
	in, err := e.Repo.GetInitiative(ctx, nil, id)
	if err != nil {
		return in, fmt.Errorf("initiative %s: %w", id, err)
	}
	return in, nil
}

func (e Engine) ListInitiatives(ctx context.Context, status string) ([]domain.Initiative, error) {
	return e.Repo.ListInitiatives(ctx, status)
}

// AddParticipant adds or re-roles a participant. Leads, architects and
// admins may add participants.
func (e Engine) AddParticipant(ctx context.Context, initiativeID, userID, role, actorID string, force bool) (domain.Participant, error) {
	if userID == "" {
		return domain.Participant{}, errors.New("user_id is required")
	}
	if !slices.Contains(participantRoles, role) {
		return domain.Participant{}, fmt.Errorf("invalid role %q", role)
	}
	p := domain.Participant{
		InitiativeID: initiativeID,
		UserID:       userID,
		Role:         role,
		AddedBy:      actorID,
		AddedAt:      e.stamp(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetInitiative(ctx, tx, initiativeID); err != nil {
			return fmt.Errorf("initiative %s: %w", initiativeID, err)
		}
		if err := e.Auth.RequireRole(ctx, tx, initiativeID, actorID, "add participants", force, domain.RoleLead, domain.RoleArchitect); err != nil {
			return err
		}
		if err := e.Auth.EnsureActor(ctx, tx, userID); err != nil {
			return err
		}
		if err := e.Repo.AddParticipant(ctx, tx, p); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ParticipantAdded, initiativeID, "participant", userID, actorID, events.EventPayload{"role": role})
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (e Engine) ListParticipants(ctx context.Context, initiativeID string) ([]domain.Participant, error) {
	return e.Repo.ListParticipants(ctx, nil, initiativeID)
}

// CancelInitiative discards the initiative's working copies, conflicts and
// locks and marks it cancelled. Promoted copies are history and stay.
func (e Engine) CancelInitiative(ctx context.Context, initiativeID, actorID string, force bool) (domain.Initiative, error) {
	var in domain.Initiative
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		in, err = e.Repo.GetInitiative(ctx, tx, initiativeID)
		if err != nil {
			return fmt.Errorf("initiative %s: %w", initiativeID, err)
		}
		if in.Status == domain.InitiativeCompleted || in.Status == domain.InitiativeCancelled {
			return preconditionf("initiative %s is already %s", initiativeID, in.Status)
		}
		if err := e.Auth.RequireRole(ctx, tx, initiativeID, actorID, "cancel the initiative", force, domain.RoleLead); err != nil {
			return err
		}
		copies, err := e.Repo.ListInitiativeVersions(ctx, tx, initiativeID, "", domain.StateCheckedOut, domain.StateCheckedIn)
		if err != nil {
			return err
		}
		for _, v := range copies {
			if err := e.Repo.DeleteVersion(ctx, tx, v.ID); err != nil {
				return fmt.Errorf("discard working copy %d: %w", v.ID, err)
			}
		}
		if _, err := e.Repo.DeleteInitiativeConflicts(ctx, tx, initiativeID); err != nil {
			return err
		}
		locks, err := e.Repo.DeleteInitiativeLocks(ctx, tx, initiativeID)
		if err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.UpdateInitiativeStatus(ctx, tx, initiativeID, domain.InitiativeCancelled, actorID, now, ""); err != nil {
			return err
		}
		in.Status = domain.InitiativeCancelled
		in.UpdatedBy = actorID
		in.UpdatedAt = now
		return e.Events.Append(ctx, tx, events.InitiativeCancelled, initiativeID, "initiative", initiativeID, actorID, events.EventPayload{
			"discarded_versions": len(copies),
			"released_locks":     locks,
		})
	})
	return in, err
}

// TransferOwnership hands the lead role to newOwner. The previous lead stays
// on as a developer.
func (e Engine) TransferOwnership(ctx context.Context, initiativeID, newOwner, actorID string, force bool) error {
	if newOwner == "" {
		return errors.New("new owner is required")
	}
	if newOwner == actorID {
		return errors.New("new owner is already the actor")
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetInitiative(ctx, tx, initiativeID); err != nil {
			return fmt.Errorf("initiative %s: %w", initiativeID, err)
		}
		role, err := e.Auth.ParticipantRole(ctx, tx, initiativeID, actorID)
		if err != nil {
			return err
		}
		if role != domain.RoleLead && !force {
			return auth.ForbiddenError{Action: "transfer ownership"}
		}
		now := e.stamp()
		if role == domain.RoleLead {
			if err := e.Repo.UpdateParticipantRole(ctx, tx, initiativeID, actorID, domain.RoleDeveloper); err != nil {
				return err
			}
		}
		if err := e.Auth.EnsureActor(ctx, tx, newOwner); err != nil {
			return err
		}
		if err := e.Repo.AddParticipant(ctx, tx, domain.Participant{
			InitiativeID: initiativeID,
			UserID:       newOwner,
			Role:         domain.RoleLead,
			AddedBy:      actorID,
			AddedAt:      now,
		}); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.OwnershipTransferred, initiativeID, "initiative", initiativeID, actorID, events.EventPayload{"from": actorID, "to": newOwner})
	})
}
