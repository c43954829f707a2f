package engine

import (
	"errors"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// LockConflictError is returned when another initiative holds a live lock on
// the artifact.
type LockConflictError struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	LockedBy     string
	LockedByUser string
	InitiativeID string
	ExpiresAt    string
}

func (e LockConflictError) Error() string {
	holder := e.LockedBy
	if e.LockedByUser != "" {
		holder = e.LockedByUser
	}
	return fmt.Sprintf("%s %d is checked out by %s in initiative %s until %s", e.ArtifactType, e.ArtifactID, holder, e.InitiativeID, e.ExpiresAt)
}

// PreconditionError reports state that must change before the operation can
// succeed.
type PreconditionError struct {
	Reason string
}

func (e PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func preconditionf(format string, args ...any) error {
	return PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

var ErrNotAutoResolvable = errors.New("conflict is not auto-resolvable; resolve it manually")
