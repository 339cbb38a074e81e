package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BidStatus string

const (
	BidStatusPending   BidStatus = "PENDING"
	BidStatusAccepted  BidStatus = "ACCEPTED"
	BidStatusRejected  BidStatus = "REJECTED"
	BidStatusWithdrawn BidStatus = "WITHDRAWN"
)

// Terminal reports whether the bid status is final.
// PENDING is the only live state.
func (s BidStatus) Terminal() bool {
	return s != BidStatusPending
}

type Bid struct {
	ID          uuid.UUID
	ContractID  uuid.UUID
	BidderID    uuid.UUID
	Amount      float64
	Terms       string
	Status      BidStatus
	Reason      *string
	SubmittedAt time.Time
	EvaluatedAt *time.Time
}

type BidDecision string

const (
	BidDecisionAccept BidDecision = "ACCEPT"
	BidDecisionReject BidDecision = "REJECT"
)

func ParseBidDecision(raw string) (BidDecision, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACCEPT":
		return BidDecisionAccept, true
	case "REJECT":
		return BidDecisionReject, true
	default:
		return "", false
	}
}
