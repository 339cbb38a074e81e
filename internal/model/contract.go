package model

import (
	"time"

	"github.com/google/uuid"
)

type Contract struct {
	ID            uuid.UUID
	Title         string
	Description   string
	Stage         Stage
	AcceptedBidID *uuid.UUID
	CreatedBy     uuid.UUID
	TeamIDs       []uuid.UUID
	KPIIDs        []uuid.UUID
	Milestones    []Milestone
	BidIDs        []uuid.UUID

	BidSubmittedAt *time.Time
	BidApprovedAt  *time.Time
	InactiveAt     *time.Time
	QueuedAt       *time.Time
	ActivatedAt    *time.Time
	PausedAt       *time.Time
	CompletedAt    *time.Time
	ClosedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnterStage moves the contract to the given stage and stamps the
// matching per-stage timestamp. Graph and permission checks are the
// caller's job.
func (c *Contract) EnterStage(stage Stage, now time.Time) {
	c.Stage = stage
	c.UpdatedAt = now
	switch stage {
	case StageBidSubmitted:
		c.BidSubmittedAt = &now
	case StageBidApproved:
		c.BidApprovedAt = &now
	case StageInactive:
		c.InactiveAt = &now
	case StageQueued:
		c.QueuedAt = &now
	case StageActive:
		c.ActivatedAt = &now
	case StagePaused:
		c.PausedAt = &now
	case StageCompleted:
		c.CompletedAt = &now
	case StageClosed:
		c.ClosedAt = &now
	}
}

type ContractFilter struct {
	Stage  *Stage
	TeamID *uuid.UUID
	Limit  int
}

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"
	MilestoneStatusInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusCompleted  MilestoneStatus = "COMPLETED"
	MilestoneStatusBlocked    MilestoneStatus = "BLOCKED"
)

type Milestone struct {
	ID         uuid.UUID
	ContractID uuid.UUID
	OrderIndex int
	Name       string
	Status     MilestoneStatus
	DependsOn  []uuid.UUID
	Assignees  []uuid.UUID
}
