package model

import (
	"time"

	"github.com/google/uuid"
)

// StageTransition is one immutable audit record. The creation entry has a
// nil FromStage; every later entry records one completed graph edge.
type StageTransition struct {
	ID         uuid.UUID
	ContractID uuid.UUID
	FromStage  *Stage
	ToStage    Stage
	ActorID    uuid.UUID
	ActorRole  Role
	Reason     string
	CreatedAt  time.Time
}
