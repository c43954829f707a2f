package domain

import (
	"bytes"
	"encoding/json"
)

const (
	InitiativeDraft     = "draft"
	InitiativeActive    = "active"
	InitiativeCompleted = "completed"
	InitiativeCancelled = "cancelled"
)

const (
	RoleLead      = "lead"
	RoleArchitect = "architect"
	RoleDeveloper = "developer"
	RoleReviewer  = "reviewer"
)

// Working copy states.
const (
	StateCheckedOut = "checked_out"
	StateCheckedIn  = "checked_in"
	StatePromoted   = "promoted"
)

const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

const (
	ConflictPending  = "pending"
	ConflictResolved = "resolved"
)

type Initiative struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	BusinessJustification string `json:"business_justification,omitempty"`
	Status                string `json:"status" enum:"draft,active,completed,cancelled"`
	Priority              string `json:"priority" enum:"low,medium,high,critical"`
	StartDate             string `json:"start_date,omitempty" format:"date-time"`
	TargetCompletionDate  string `json:"target_completion_date,omitempty"`
	ActualCompletionDate  string `json:"actual_completion_date,omitempty" format:"date-time"`
	CreatedBy             string `json:"created_by"`
	CreatedAt             string `json:"created_at" format:"date-time"`
	UpdatedBy             string `json:"updated_by,omitempty"`
	UpdatedAt             string `json:"updated_at,omitempty" format:"date-time"`
}

type Participant struct {
	InitiativeID string `json:"initiative_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role" enum:"lead,architect,developer,reviewer"`
	AddedBy      string `json:"added_by,omitempty"`
	AddedAt      string `json:"added_at" format:"date-time"`
}

// ArtifactVersion is one snapshot of an artifact. Baselines have no
// initiative; working copies always do.
type ArtifactVersion struct {
	ID              int64        `json:"id"`
	ArtifactType    ArtifactType `json:"artifact_type"`
	ArtifactID      int64        `json:"artifact_id"`
	VersionNumber   int          `json:"version_number"`
	InitiativeID    *string      `json:"initiative_id,omitempty"`
	ParentVersionID *int64       `json:"parent_version_id,omitempty"`
	IsBaseline      bool         `json:"is_baseline"`
	State           string       `json:"state,omitempty"`
	BaselineDate    string       `json:"baseline_date,omitempty"`
	BaselinedBy     string       `json:"baselined_by,omitempty"`
	Data            Payload      `json:"artifact_data"`
	ChangedFields   []string     `json:"changed_fields,omitempty"`
	ChangeType      string       `json:"change_type" enum:"create,update,delete"`
	ChangeReason    string       `json:"change_reason,omitempty"`
	CreatedBy       string       `json:"created_by"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedBy       string       `json:"updated_by,omitempty"`
	UpdatedAt       string       `json:"updated_at,omitempty"`
}

// UnmarshalJSON decodes artifact_data into the payload type named by
// artifact_type.
func (v *ArtifactVersion) UnmarshalJSON(data []byte) error {
	type alias ArtifactVersion
	var raw struct {
		alias
		Data json.RawMessage `json:"artifact_data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ArtifactVersion(raw.alias)
	v.Data = nil
	if trimmed := bytes.TrimSpace(raw.Data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		p, err := DecodePayload(raw.ArtifactType, trimmed)
		if err != nil {
			return err
		}
		v.Data = p
	}
	return nil
}

func (v ArtifactVersion) Initiative() string {
	if v.InitiativeID == nil {
		return ""
	}
	return *v.InitiativeID
}

type ArtifactLock struct {
	ID           int64        `json:"id"`
	ArtifactType ArtifactType `json:"artifact_type"`
	ArtifactID   int64        `json:"artifact_id"`
	InitiativeID string       `json:"initiative_id"`
	LockedBy     string       `json:"locked_by"`
	LockedByName string       `json:"locked_by_user,omitempty"`
	LockedAt     string       `json:"locked_at" format:"date-time"`
	LockExpiry   string       `json:"lock_expiry" format:"date-time"`
	LockReason   string       `json:"lock_reason,omitempty"`
}

type VersionConflict struct {
	ID                  int64          `json:"id"`
	InitiativeID        string         `json:"initiative_id"`
	ArtifactType        ArtifactType   `json:"artifact_type"`
	ArtifactID          int64          `json:"artifact_id"`
	BaselineVersionID   int64          `json:"baseline_version_id"`
	InitiativeVersionID int64          `json:"initiative_version_id"`
	ConflictingFields   []string       `json:"conflicting_fields"`
	Details             ConflictReport `json:"conflict_details"`
	ResolutionStatus    string         `json:"resolution_status" enum:"pending,resolved"`
	ResolutionStrategy  string         `json:"resolution_strategy,omitempty"`
	ResolvedData        map[string]any `json:"resolved_data,omitempty"`
	ResolvedBy          string         `json:"resolved_by,omitempty"`
	ResolvedAt          string         `json:"resolved_at,omitempty"`
	ResolutionNotes     string         `json:"resolution_notes,omitempty"`
	CreatedAt           string         `json:"created_at" format:"date-time"`
	UpdatedAt           string         `json:"updated_at" format:"date-time"`
}

// ConflictReport is the persisted analysis of one conflicting artifact.
type ConflictReport struct {
	Fields            []FieldConflict    `json:"conflicts"`
	DependencyImpacts []DependencyImpact `json:"dependency_impacts"`
	RiskScore         int                `json:"risk_score"`
	SuggestedStrategy string             `json:"suggested_strategy" enum:"auto,manual,escalate"`
}

type FieldConflict struct {
	Field               string `json:"field"`
	OriginalValue       any    `json:"original_value"`
	BaselineValue       any    `json:"baseline_value"`
	InitiativeValue     any    `json:"initiative_value"`
	Severity            string `json:"severity" enum:"low,medium,high,critical"`
	AutoResolvable      bool   `json:"auto_resolvable"`
	SuggestedResolution string `json:"suggested_resolution" enum:"baseline,initiative,merge"`
	MergeStrategy       string `json:"merge_strategy"`
}

type DependencyImpact struct {
	ArtifactType ArtifactType `json:"artifact_type"`
	ArtifactID   int64        `json:"artifact_id"`
	ImpactType   string       `json:"impact_type" enum:"info,warning,breaking"`
	Description  string       `json:"description"`
}

type VersionDependency struct {
	ID            int64  `json:"id"`
	FromVersionID int64  `json:"from_version_id"`
	ToVersionID   int64  `json:"to_version_id"`
	Type          string `json:"dependency_type" enum:"requires,impacts,related_to,consumes,provides"`
	Strength      string `json:"dependency_strength" enum:"strong,weak,optional"`
	Description   string `json:"description,omitempty"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type BaselineHistory struct {
	ID            int64        `json:"id"`
	ArtifactType  ArtifactType `json:"artifact_type"`
	ArtifactID    int64        `json:"artifact_id"`
	FromVersionID *int64       `json:"from_version_id,omitempty"`
	ToVersionID   int64        `json:"to_version_id"`
	InitiativeID  string       `json:"initiative_id,omitempty"`
	BaselinedBy   string       `json:"baselined_by"`
	BaselinedAt   string       `json:"baselined_at" format:"date-time"`
	Reason        string       `json:"baseline_reason,omitempty"`
}

type ChangeRequest struct {
	ID           int64  `json:"id" yaml:"id"`
	Number       string `json:"cr_number" yaml:"cr_number"`
	Title        string `json:"title" yaml:"title"`
	Status       string `json:"status" yaml:"status"`
	InitiativeID string `json:"initiative_id,omitempty" yaml:"initiative_id"`
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	InitiativeID string `json:"initiative_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}

type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}
