package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	InitiativeCreated    = "initiative.created"
	InitiativeCancelled  = "initiative.cancelled"
	InitiativeCompleted  = "initiative.completed"
	ParticipantAdded     = "initiative.participant_added"
	OwnershipTransferred = "initiative.ownership_transferred"
	ArtifactCheckedOut   = "artifact.checked_out"
	ArtifactCheckedIn    = "artifact.checked_in"
	CheckoutCancelled    = "artifact.checkout_cancelled"
	ArtifactBaselined    = "artifact.baselined"
	CatalogImported      = "catalog.imported"
	LockReleased         = "lock.released"
	LocksSwept           = "lock.swept"
	ConflictDetected     = "conflict.detected"
	ConflictResolved     = "conflict.resolved"
	DependencyCreated    = "dependency.created"
	OrphansReconciled    = "version.orphans_reconciled"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, initiativeID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,initiative_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(initiativeID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
