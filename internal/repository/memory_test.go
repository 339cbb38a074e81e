package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

func seedContract(t *testing.T, store *MemoryStore) model.Contract {
	t.Helper()
	now := time.Now().UTC()
	contract := model.Contract{
		ID:        uuid.New(),
		Title:     "Seed",
		Stage:     model.StageProposal,
		CreatedBy: uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	created := model.StageTransition{
		ID:         uuid.New(),
		ContractID: contract.ID,
		ToStage:    contract.Stage,
		ActorID:    contract.CreatedBy,
		ActorRole:  model.RoleManager,
		Reason:     "contract created",
		CreatedAt:  now,
	}
	require.NoError(t, store.CreateContract(context.Background(), &contract, created))
	return contract
}

func TestMemoryStoreLockTimeout(t *testing.T) {
	store := NewMemoryStore(50 * time.Millisecond)
	contract := seedContract(t, store)
	ctx := context.Background()

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.UpdateAggregate(ctx, contract.ID, func(agg *Aggregate) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := store.UpdateAggregate(ctx, contract.ID, func(agg *Aggregate) error { return nil })
	assert.ErrorIs(t, err, ErrLocked)
	close(release)
}

func TestMemoryStoreIndependentContractsDoNotContend(t *testing.T) {
	store := NewMemoryStore(50 * time.Millisecond)
	first := seedContract(t, store)
	second := seedContract(t, store)
	ctx := context.Background()

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.UpdateAggregate(ctx, first.ID, func(agg *Aggregate) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := store.UpdateAggregate(ctx, second.ID, func(agg *Aggregate) error { return nil })
	assert.NoError(t, err)
	close(release)
}

func TestMemoryStoreUpdateIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore(time.Second)
	contract := seedContract(t, store)
	ctx := context.Background()

	boom := errors.New("validation failed")
	err := store.UpdateAggregate(ctx, contract.ID, func(agg *Aggregate) error {
		agg.Contract.Stage = model.StageClosed
		agg.AddBid(model.Bid{ID: uuid.New(), ContractID: contract.ID, Status: model.BidStatusPending})
		agg.AppendTransition(model.StageTransition{ID: uuid.New(), ContractID: contract.ID})
		return boom
	})
	require.ErrorIs(t, err, boom)

	unchanged, err := store.GetContract(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageProposal, unchanged.Stage)

	bids, err := store.ListBids(ctx, contract.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)

	transitions, err := store.ListTransitions(ctx, contract.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 1)
}

func TestMemoryStoreBidLookup(t *testing.T) {
	store := NewMemoryStore(time.Second)
	contract := seedContract(t, store)
	ctx := context.Background()

	bidID := uuid.New()
	err := store.UpdateAggregate(ctx, contract.ID, func(agg *Aggregate) error {
		agg.AddBid(model.Bid{
			ID:          bidID,
			ContractID:  contract.ID,
			BidderID:    uuid.New(),
			Status:      model.BidStatusPending,
			SubmittedAt: time.Now().UTC(),
		})
		return nil
	})
	require.NoError(t, err)

	bid, err := store.GetBid(ctx, bidID)
	require.NoError(t, err)
	assert.Equal(t, contract.ID, bid.ContractID)

	_, err = store.GetBid(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore(time.Second)
	contract := seedContract(t, store)
	ctx := context.Background()

	fetched, err := store.GetContract(ctx, contract.ID)
	require.NoError(t, err)
	fetched.Stage = model.StageClosed
	fetched.TeamIDs = append(fetched.TeamIDs, uuid.New())

	again, err := store.GetContract(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageProposal, again.Stage)
	assert.Empty(t, again.TeamIDs)
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore(time.Second)
	ctx := context.Background()

	_, err := store.GetContract(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateAggregate(ctx, uuid.New(), func(agg *Aggregate) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
