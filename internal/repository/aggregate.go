// Package repository persists contract aggregates. An aggregate is one
// contract plus its bids plus its append-only transition log; every
// mutating operation runs against exactly one aggregate under an
// exclusive per-contract lock.
package repository

import (
	"errors"

	"github.com/google/uuid"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

var (
	// ErrNotFound is returned when the requested contract or bid does
	// not exist.
	ErrNotFound = errors.New("record not found")

	// ErrLocked is returned when the per-contract lock could not be
	// acquired within the configured timeout. Safe to retry.
	ErrLocked = errors.New("contract aggregate is locked")

	// ErrUnavailable is returned when the store itself is unreachable.
	ErrUnavailable = errors.New("store unavailable")
)

// Aggregate is the unit of mutation handed to UpdateAggregate callbacks.
// Mutate Contract and Bids in place; new bids and audit records go through
// AddBid and AppendTransition so the store knows what to insert.
type Aggregate struct {
	Contract model.Contract
	Bids     []model.Bid

	addedBids   []uuid.UUID
	transitions []model.StageTransition
}

// Bid returns a pointer into Bids for the given id, or nil.
func (a *Aggregate) Bid(id uuid.UUID) *model.Bid {
	for i := range a.Bids {
		if a.Bids[i].ID == id {
			return &a.Bids[i]
		}
	}
	return nil
}

// AddBid registers a brand new bid on the aggregate.
func (a *Aggregate) AddBid(bid model.Bid) {
	a.Bids = append(a.Bids, bid)
	a.addedBids = append(a.addedBids, bid.ID)
}

// AddedBids returns the bids created during this update, in order.
func (a *Aggregate) AddedBids() []model.Bid {
	out := make([]model.Bid, 0, len(a.addedBids))
	for _, id := range a.addedBids {
		if bid := a.Bid(id); bid != nil {
			out = append(out, *bid)
		}
	}
	return out
}

// AppendTransition records one audit entry to be committed atomically
// with the rest of the update.
func (a *Aggregate) AppendTransition(t model.StageTransition) {
	a.transitions = append(a.transitions, t)
}

// AppendedTransitions returns the audit entries added during this update.
func (a *Aggregate) AppendedTransitions() []model.StageTransition {
	return a.transitions
}
