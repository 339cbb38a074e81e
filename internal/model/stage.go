package model

import "strings"

type Stage string

const (
	StageProposal     Stage = "PROPOSAL"
	StageBidSubmitted Stage = "BID_SUBMITTED"
	StageBidApproved  Stage = "BID_APPROVED"
	StageInactive     Stage = "INACTIVE"
	StageQueued       Stage = "QUEUED"
	StageActive       Stage = "ACTIVE"
	StagePaused       Stage = "PAUSED"
	StageCompleted    Stage = "COMPLETED"
	StageClosed       Stage = "CLOSED"
)

// StageInitial is the stage every contract is created in.
const StageInitial = StageProposal

var allStages = []Stage{
	StageProposal,
	StageBidSubmitted,
	StageBidApproved,
	StageInactive,
	StageQueued,
	StageActive,
	StagePaused,
	StageCompleted,
	StageClosed,
}

func (s Stage) Valid() bool {
	for _, stage := range allStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Terminal reports whether the stage admits no further mutation.
func (s Stage) Terminal() bool {
	return s == StageClosed
}

func ParseStage(raw string) (Stage, bool) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	if !stage.Valid() {
		return "", false
	}
	return stage, true
}
