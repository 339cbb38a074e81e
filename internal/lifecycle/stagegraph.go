// Package lifecycle holds the static tables that gate contract stage
// transitions: the stage adjacency graph, the role permission table and
// the advisory per-stage requirement texts.
package lifecycle

import "github.com/ayothedoc3/labyrinthos-contracts/internal/model"

// stageGraph is the fixed adjacency table over the stage enum. Back-edges
// (BID_SUBMITTED→PROPOSAL, QUEUED→INACTIVE, PAUSED→ACTIVE) are legitimate
// rollback paths. CLOSED has no outgoing edges.
var stageGraph = map[model.Stage][]model.Stage{
	model.StageProposal:     {model.StageBidSubmitted},
	model.StageBidSubmitted: {model.StageBidApproved, model.StageProposal},
	model.StageBidApproved:  {model.StageInactive},
	model.StageInactive:     {model.StageQueued},
	model.StageQueued:       {model.StageActive, model.StageInactive},
	model.StageActive:       {model.StagePaused, model.StageCompleted},
	model.StagePaused:       {model.StageActive, model.StageClosed},
	model.StageCompleted:    {model.StageClosed},
	model.StageClosed:       {},
}

// CanTransition reports whether from→to is an edge of the stage graph.
func CanTransition(from, to model.Stage) bool {
	for _, next := range stageGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the legal next stages from the given stage. The
// result is a copy safe for the caller to hold onto.
func AllowedNext(from model.Stage) []model.Stage {
	edges := stageGraph[from]
	out := make([]model.Stage, len(edges))
	copy(out, edges)
	return out
}

// stageRequirements carries the advisory "what it takes to move on" text
// shown to operators. These are informational only and never enforced.
var stageRequirements = map[model.Stage]string{
	model.StageProposal:     "an internal party must submit a bid",
	model.StageBidSubmitted: "a manager must approve one of the pending bids",
	model.StageBidApproved:  "client must sign the agreement",
	model.StageInactive:     "capacity must be available to queue the contract",
	model.StageQueued:       "an assigned team and milestones are needed for activation",
	model.StageActive:       "all milestones must be completed",
	model.StagePaused:       "resume work or close the contract",
	model.StageCompleted:    "final review before closure",
}

// NextStageRequirement returns the advisory requirement text for leaving
// the given stage, or an empty string for the terminal stage.
func NextStageRequirement(stage model.Stage) string {
	return stageRequirements[stage]
}
