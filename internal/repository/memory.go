package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

// MemoryStore keeps contract aggregates in process memory. It honors the
// same locking contract as the postgres store: one exclusive lock per
// contract, acquired with a timeout. Intended for tests and local runs
// without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*memoryRecord
	bidIndex    map[uuid.UUID]uuid.UUID
	lockTimeout time.Duration
}

type memoryRecord struct {
	sem         chan struct{}
	contract    model.Contract
	bids        []model.Bid
	transitions []model.StageTransition
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &MemoryStore{
		records:     make(map[uuid.UUID]*memoryRecord),
		bidIndex:    make(map[uuid.UUID]uuid.UUID),
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) CreateContract(ctx context.Context, contract *model.Contract, created model.StageTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[contract.ID]; exists {
		return fmt.Errorf("contract %s already exists", contract.ID)
	}
	s.records[contract.ID] = &memoryRecord{
		sem:         make(chan struct{}, 1),
		contract:    cloneContract(*contract),
		transitions: []model.StageTransition{created},
	}
	return nil
}

func (s *MemoryStore) GetContract(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	contract := cloneContract(record.contract)
	for _, bid := range record.bids {
		contract.BidIDs = append(contract.BidIDs, bid.ID)
	}
	return &contract, nil
}

func (s *MemoryStore) GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contractID, ok := s.bidIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	record := s.records[contractID]
	for i := range record.bids {
		if record.bids[i].ID == id {
			bid := record.bids[i]
			return &bid, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListContracts(ctx context.Context, filter model.ContractFilter) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Contract
	for _, record := range s.records {
		if filter.Stage != nil && record.contract.Stage != *filter.Stage {
			continue
		}
		if filter.TeamID != nil && !containsID(record.contract.TeamIDs, *filter.TeamID) {
			continue
		}
		out = append(out, cloneContract(record.contract))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListBids(ctx context.Context, contractID uuid.UUID) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[contractID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.Bid, len(record.bids))
	copy(out, record.bids)
	return out, nil
}

func (s *MemoryStore) ListTransitions(ctx context.Context, contractID uuid.UUID) ([]model.StageTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[contractID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.StageTransition, len(record.transitions))
	copy(out, record.transitions)
	return out, nil
}

// UpdateAggregate runs fn under the contract's exclusive lock and commits
// the mutated aggregate. A lock that cannot be acquired within the
// timeout surfaces as ErrLocked, never as a blocked goroutine.
func (s *MemoryStore) UpdateAggregate(ctx context.Context, contractID uuid.UUID, fn func(agg *Aggregate) error) error {
	s.mu.RLock()
	record, ok := s.records[contractID]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case record.sem <- struct{}{}:
	case <-timer.C:
		return ErrLocked
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-record.sem }()

	agg := &Aggregate{
		Contract: cloneContract(record.contract),
		Bids:     make([]model.Bid, len(record.bids)),
	}
	copy(agg.Bids, record.bids)

	if err := fn(agg); err != nil {
		return err
	}

	s.mu.Lock()
	record.contract = cloneContract(agg.Contract)
	record.bids = make([]model.Bid, len(agg.Bids))
	copy(record.bids, agg.Bids)
	for _, bid := range agg.AddedBids() {
		s.bidIndex[bid.ID] = contractID
	}
	record.transitions = append(record.transitions, agg.AppendedTransitions()...)
	s.mu.Unlock()
	return nil
}

func cloneContract(c model.Contract) model.Contract {
	out := c
	out.TeamIDs = append([]uuid.UUID(nil), c.TeamIDs...)
	out.KPIIDs = append([]uuid.UUID(nil), c.KPIIDs...)
	out.BidIDs = append([]uuid.UUID(nil), c.BidIDs...)
	out.Milestones = make([]model.Milestone, len(c.Milestones))
	for i, m := range c.Milestones {
		m.DependsOn = append([]uuid.UUID(nil), m.DependsOn...)
		m.Assignees = append([]uuid.UUID(nil), m.Assignees...)
		out.Milestones[i] = m
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
