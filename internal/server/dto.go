package server

import (
	"encoding/json"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/impact"
)

// Request payloads

type CreateInitiativeRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	BusinessJustification string `json:"business_justification,omitempty"`
	Priority              string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	TargetCompletionDate  string `json:"target_completion_date,omitempty"`
}

type AddParticipantRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"lead,architect,developer,reviewer"`
}

type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

type ArtifactRef struct {
	ArtifactType string `json:"artifact_type" enum:"application,interface,business_process,internal_process,technical_process"`
	ArtifactID   int64  `json:"artifact_id"`
}

type CheckinRequest struct {
	ArtifactType string         `json:"artifact_type" enum:"application,interface,business_process,internal_process,technical_process"`
	ArtifactID   int64          `json:"artifact_id"`
	Data         map[string]any `json:"data"`
	ChangeReason string         `json:"change_reason,omitempty"`
}

type CancelCheckoutRequest struct {
	ArtifactType string `json:"artifact_type" enum:"application,interface,business_process,internal_process,technical_process"`
	// ArtifactID of zero cancels every checkout of the type.
	ArtifactID int64 `json:"artifact_id,omitempty"`
}

type BaselineRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ResolveConflictRequest struct {
	Strategy     string         `json:"strategy" enum:"accept_baseline,keep_initiative,manual_merge,auto_merge"`
	ResolvedData map[string]any `json:"resolved_data,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

type CreateDependencyRequest struct {
	FromArtifactType string `json:"from_artifact_type" enum:"application,interface,business_process,internal_process,technical_process"`
	FromArtifactID   int64  `json:"from_artifact_id"`
	ToArtifactType   string `json:"to_artifact_type" enum:"application,interface,business_process,internal_process,technical_process"`
	ToArtifactID     int64  `json:"to_artifact_id"`
	DependencyType   string `json:"dependency_type" enum:"requires,impacts,related_to,consumes,provides"`
	Strength         string `json:"dependency_strength,omitempty" enum:"strong,weak,optional"`
	Description      string `json:"description,omitempty"`
}

type BulkCheckoutRequest struct {
	ArtifactType string `json:"artifact_type,omitempty" enum:"application,interface,business_process,internal_process,technical_process"`
	ArtifactID   int64  `json:"artifact_id,omitempty"`
	// ImpactAnalysis is a previously fetched checkout-impact result. When
	// absent it is recomputed from the artifact reference.
	ImpactAnalysis *impact.Analysis `json:"impact_analysis,omitempty"`
	AutoApprove    bool             `json:"auto_approve,omitempty"`
}

// Responses

type InitiativeDetail struct {
	Initiative   domain.Initiative    `json:"initiative"`
	Participants []domain.Participant `json:"participants"`
}

type CancelCheckoutResponse struct {
	Cancelled int `json:"cancelled"`
}

type ArtifactVersionsResponse struct {
	Versions []domain.ArtifactVersion `json:"versions"`
	History  []domain.BaselineHistory `json:"baseline_history"`
}

type EventResponse struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts" format:"date-time"`
	Type         string         `json:"type"`
	InitiativeID string         `json:"initiative_id,omitempty"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:           e.ID,
		TS:           e.TS,
		Type:         e.Type,
		InitiativeID: e.InitiativeID,
		EntityKind:   e.EntityKind,
		EntityID:     e.EntityID,
		ActorID:      e.ActorID,
		Payload:      decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
