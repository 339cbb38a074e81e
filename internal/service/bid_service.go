package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/lifecycle"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/notify"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/repository"
)

const rejectedByAward = "another bid was accepted"

// BidService manages the competitive bidding window of a contract:
// submission, withdrawal and the atomic award that resolves competing
// bids and advances the contract stage.
type BidService struct {
	store    Store
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewBidService(store Store, notifier notify.Notifier, log zerolog.Logger) *BidService {
	return &BidService{store: store, notifier: notifier, log: log}
}

type SubmitBidInput struct {
	ContractID uuid.UUID
	Amount     float64
	Terms      string
	Principal  model.Principal
}

// SubmitBid creates a PENDING bid. The first bid on a contract advances
// it PROPOSAL→BID_SUBMITTED as a side effect of the same atomic update.
func (s *BidService) SubmitBid(ctx context.Context, input SubmitBidInput) (*model.Bid, error) {
	if !lifecycle.Allowed(input.Principal.Role, lifecycle.PermissionSubmitBids) {
		return nil, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, input.Principal.Role, lifecycle.PermissionSubmitBids)
	}

	var created model.Bid
	var advanced bool
	err := s.store.UpdateAggregate(ctx, input.ContractID, func(agg *repository.Aggregate) error {
		contract := &agg.Contract
		if contract.Stage.Terminal() {
			return fmt.Errorf("%w: contract %s", ErrTerminalState, contract.ID)
		}
		if contract.Stage != model.StageProposal && contract.Stage != model.StageBidSubmitted {
			return fmt.Errorf("%w: stage %s", ErrContractNotOpen, contract.Stage)
		}
		for _, bid := range agg.Bids {
			if bid.BidderID == input.Principal.UserID && bid.Status != model.BidStatusWithdrawn {
				return fmt.Errorf("%w: bid %s is %s", ErrDuplicateBid, bid.ID, bid.Status)
			}
		}

		now := time.Now().UTC()
		created = model.Bid{
			ID:          uuid.New(),
			ContractID:  contract.ID,
			BidderID:    input.Principal.UserID,
			Amount:      input.Amount,
			Terms:       input.Terms,
			Status:      model.BidStatusPending,
			SubmittedAt: now,
		}
		agg.AddBid(created)

		if contract.Stage == model.StageProposal {
			from := contract.Stage
			contract.EnterStage(model.StageBidSubmitted, now)
			agg.AppendTransition(model.StageTransition{
				ID:         uuid.New(),
				ContractID: contract.ID,
				FromStage:  &from,
				ToStage:    model.StageBidSubmitted,
				ActorID:    input.Principal.UserID,
				ActorRole:  input.Principal.Role,
				Reason:     "first bid submitted",
				CreatedAt:  now,
			})
			advanced = true
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.emit(ctx, notify.EventBidSubmitted, map[string]interface{}{
		"contract_id": created.ContractID.String(),
		"bid_id":      created.ID.String(),
		"bidder_id":   created.BidderID.String(),
	})
	if advanced {
		s.emit(ctx, notify.EventStageChanged, map[string]interface{}{
			"contract_id": created.ContractID.String(),
			"stage":       string(model.StageBidSubmitted),
			"reason":      "first bid submitted",
		})
	}
	return &created, nil
}

type EvaluateBidInput struct {
	BidID     uuid.UUID
	Decision  model.BidDecision
	Reason    string
	Principal model.Principal
}

// EvaluateBid resolves a pending bid. An ACCEPT decision is the award:
// the target bid is accepted, every other pending bid on the contract is
// rejected, the contract advances BID_SUBMITTED→BID_APPROVED, the audit
// record is appended and the winning bid id is pinned on the contract.
// All five apply in one atomic update or not at all. Evaluating a bid
// that is already terminal reports its existing status without side
// effects, so retries are idempotent.
func (s *BidService) EvaluateBid(ctx context.Context, input EvaluateBidInput) (*model.Bid, error) {
	if input.Decision != model.BidDecisionAccept && input.Decision != model.BidDecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, input.Decision)
	}
	if !lifecycle.Allowed(input.Principal.Role, lifecycle.PermissionApproveBids) {
		return nil, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, input.Principal.Role, lifecycle.PermissionApproveBids)
	}

	// Unlocked read just to resolve the owning aggregate.
	ref, err := s.store.GetBid(ctx, input.BidID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	var result model.Bid
	var awarded bool
	err = s.store.UpdateAggregate(ctx, ref.ContractID, func(agg *repository.Aggregate) error {
		bid := agg.Bid(input.BidID)
		if bid == nil {
			return fmt.Errorf("%w: bid %s", ErrNotFound, input.BidID)
		}
		if bid.Status.Terminal() {
			result = *bid
			return nil
		}

		now := time.Now().UTC()
		switch input.Decision {
		case model.BidDecisionReject:
			reason := input.Reason
			if reason == "" {
				reason = "rejected by evaluator"
			}
			bid.Status = model.BidStatusRejected
			bid.Reason = &reason
			bid.EvaluatedAt = &now
			result = *bid

		case model.BidDecisionAccept:
			contract := &agg.Contract
			if contract.Stage != model.StageBidSubmitted {
				return fmt.Errorf("%w: contract %s is past bidding (stage %s)",
					ErrConflict, contract.ID, contract.Stage)
			}

			bid.Status = model.BidStatusAccepted
			bid.EvaluatedAt = &now
			if input.Reason != "" {
				reason := input.Reason
				bid.Reason = &reason
			}
			for i := range agg.Bids {
				other := &agg.Bids[i]
				if other.ID == bid.ID || other.Status != model.BidStatusPending {
					continue
				}
				reason := rejectedByAward
				other.Status = model.BidStatusRejected
				other.Reason = &reason
				other.EvaluatedAt = &now
			}

			from := contract.Stage
			contract.EnterStage(model.StageBidApproved, now)
			winner := bid.ID
			contract.AcceptedBidID = &winner
			agg.AppendTransition(model.StageTransition{
				ID:         uuid.New(),
				ContractID: contract.ID,
				FromStage:  &from,
				ToStage:    model.StageBidApproved,
				ActorID:    input.Principal.UserID,
				ActorRole:  input.Principal.Role,
				Reason:     fmt.Sprintf("bid %s accepted", bid.ID),
				CreatedAt:  now,
			})
			awarded = true
			result = *bid
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.emit(ctx, notify.EventBidEvaluated, map[string]interface{}{
		"contract_id": result.ContractID.String(),
		"bid_id":      result.ID.String(),
		"status":      string(result.Status),
	})
	if awarded {
		s.emit(ctx, notify.EventStageChanged, map[string]interface{}{
			"contract_id": result.ContractID.String(),
			"stage":       string(model.StageBidApproved),
			"reason":      "bid accepted",
		})
	}
	return &result, nil
}

// WithdrawBid retires a pending bid. Only the bidder (or a blanket-grant
// role) may withdraw, and only while the bid is still PENDING.
func (s *BidService) WithdrawBid(ctx context.Context, bidID uuid.UUID, principal model.Principal) error {
	ref, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return mapStoreError(err)
	}
	if ref.BidderID != principal.UserID && !lifecycle.Allowed(principal.Role, lifecycle.PermissionManageAll) {
		return fmt.Errorf("%w: only the bidder may withdraw", ErrPermissionDenied)
	}

	err = s.store.UpdateAggregate(ctx, ref.ContractID, func(agg *repository.Aggregate) error {
		bid := agg.Bid(bidID)
		if bid == nil {
			return fmt.Errorf("%w: bid %s", ErrNotFound, bidID)
		}
		if bid.Status != model.BidStatusPending {
			return fmt.Errorf("%w: bid is %s", ErrConflict, bid.Status)
		}
		now := time.Now().UTC()
		bid.Status = model.BidStatusWithdrawn
		bid.EvaluatedAt = &now
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.emit(ctx, notify.EventBidWithdrawn, map[string]interface{}{
		"contract_id": ref.ContractID.String(),
		"bid_id":      bidID.String(),
	})
	return nil
}

func (s *BidService) ListBids(ctx context.Context, contractID uuid.UUID) ([]model.Bid, error) {
	bids, err := s.store.ListBids(ctx, contractID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return bids, nil
}

func (s *BidService) emit(ctx context.Context, eventType string, payload map[string]interface{}) {
	emitEvent(ctx, s.notifier, s.log, eventType, payload)
}
