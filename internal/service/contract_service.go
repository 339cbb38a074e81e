package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/lifecycle"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/notify"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/repository"
)

// Store is the persistence contract the services depend on. Both the
// postgres and the in-memory repositories satisfy it.
type Store interface {
	CreateContract(ctx context.Context, contract *model.Contract, created model.StageTransition) error
	GetContract(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error)
	ListContracts(ctx context.Context, filter model.ContractFilter) ([]model.Contract, error)
	ListBids(ctx context.Context, contractID uuid.UUID) ([]model.Bid, error)
	ListTransitions(ctx context.Context, contractID uuid.UUID) ([]model.StageTransition, error)
	UpdateAggregate(ctx context.Context, contractID uuid.UUID, fn func(agg *repository.Aggregate) error) error
}

// ContractService is the sole mutator of contract stage. Every stage
// change runs the same gate: terminal check, permission, graph edge,
// stage preconditions, then apply + audit in one atomic update.
type ContractService struct {
	store    Store
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewContractService(store Store, notifier notify.Notifier, log zerolog.Logger) *ContractService {
	return &ContractService{store: store, notifier: notifier, log: log}
}

type MilestoneInput struct {
	Name      string
	DependsOn []int // indexes into the milestone list
	Assignees []uuid.UUID
}

type CreateContractInput struct {
	Title       string
	Description string
	TeamIDs     []uuid.UUID
	KPIIDs      []uuid.UUID
	Milestones  []MilestoneInput
	Principal   model.Principal
}

func (s *ContractService) CreateContract(ctx context.Context, input CreateContractInput) (*model.Contract, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	contract := model.Contract{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		Stage:       model.StageInitial,
		CreatedBy:   input.Principal.UserID,
		TeamIDs:     input.TeamIDs,
		KPIIDs:      input.KPIIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	milestones := make([]model.Milestone, len(input.Milestones))
	for i, in := range input.Milestones {
		if in.Name == "" {
			return nil, fmt.Errorf("%w: milestone %d has no name", ErrInvalidInput, i)
		}
		milestones[i] = model.Milestone{
			ID:         uuid.New(),
			ContractID: contract.ID,
			OrderIndex: i,
			Name:       in.Name,
			Status:     model.MilestoneStatusPending,
			Assignees:  in.Assignees,
		}
	}
	for i, in := range input.Milestones {
		for _, dep := range in.DependsOn {
			if dep < 0 || dep >= len(milestones) || dep == i {
				return nil, fmt.Errorf("%w: milestone %d has invalid dependency index %d", ErrInvalidInput, i, dep)
			}
			milestones[i].DependsOn = append(milestones[i].DependsOn, milestones[dep].ID)
		}
	}
	contract.Milestones = milestones

	created := model.StageTransition{
		ID:         uuid.New(),
		ContractID: contract.ID,
		ToStage:    contract.Stage,
		ActorID:    input.Principal.UserID,
		ActorRole:  input.Principal.Role,
		Reason:     "contract created",
		CreatedAt:  now,
	}

	if err := s.store.CreateContract(ctx, &contract, created); err != nil {
		return nil, mapStoreError(err)
	}

	s.emit(ctx, notify.EventContractCreated, map[string]interface{}{
		"contract_id": contract.ID.String(),
		"stage":       string(contract.Stage),
		"created_by":  input.Principal.UserID.String(),
	})
	return &contract, nil
}

func (s *ContractService) GetContract(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return contract, nil
}

func (s *ContractService) ListContracts(ctx context.Context, filter model.ContractFilter) ([]model.Contract, error) {
	contracts, err := s.store.ListContracts(ctx, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return contracts, nil
}

func (s *ContractService) TransitionLog(ctx context.Context, contractID uuid.UUID) ([]model.StageTransition, error) {
	transitions, err := s.store.ListTransitions(ctx, contractID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return transitions, nil
}

type TransitionInput struct {
	ContractID uuid.UUID
	ToStage    model.Stage
	Reason     string
	Principal  model.Principal
}

// Transition applies one caller-initiated stage change. Validation order:
// terminal state, permission, graph edge, stage preconditions. Nothing is
// persisted unless every gate passes.
func (s *ContractService) Transition(ctx context.Context, input TransitionInput) (*model.Contract, error) {
	if !input.ToStage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, input.ToStage)
	}

	var updated model.Contract
	err := s.store.UpdateAggregate(ctx, input.ContractID, func(agg *repository.Aggregate) error {
		contract := &agg.Contract
		if contract.Stage.Terminal() {
			return fmt.Errorf("%w: contract %s", ErrTerminalState, contract.ID)
		}

		required := lifecycle.RequiredPermission(input.ToStage)
		if !lifecycle.Allowed(input.Principal.Role, required) {
			return fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, input.Principal.Role, required)
		}
		if !lifecycle.CanTransition(contract.Stage, input.ToStage) {
			return &InvalidTransitionError{
				From:        contract.Stage,
				To:          input.ToStage,
				AllowedNext: lifecycle.AllowedNext(contract.Stage),
			}
		}
		if err := checkStagePrecondition(contract, input.ToStage); err != nil {
			return err
		}

		now := time.Now().UTC()
		from := contract.Stage
		contract.EnterStage(input.ToStage, now)
		agg.AppendTransition(model.StageTransition{
			ID:         uuid.New(),
			ContractID: contract.ID,
			FromStage:  &from,
			ToStage:    input.ToStage,
			ActorID:    input.Principal.UserID,
			ActorRole:  input.Principal.Role,
			Reason:     input.Reason,
			CreatedAt:  now,
		})
		updated = agg.Contract
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.emit(ctx, notify.EventStageChanged, map[string]interface{}{
		"contract_id": updated.ID.String(),
		"stage":       string(updated.Stage),
		"actor_id":    input.Principal.UserID.String(),
		"reason":      input.Reason,
	})
	return &updated, nil
}

// checkStagePrecondition enforces the hard side preconditions. Only
// activation has one; everything else is advisory text.
func checkStagePrecondition(contract *model.Contract, to model.Stage) error {
	if to != model.StageActive {
		return nil
	}
	if len(contract.TeamIDs) == 0 {
		return &PreconditionError{Stage: to, Requirement: "at least one assigned team"}
	}
	if len(contract.Milestones) == 0 {
		return &PreconditionError{Stage: to, Requirement: "at least one milestone"}
	}
	return nil
}

func (s *ContractService) emit(ctx context.Context, eventType string, payload map[string]interface{}) {
	emitEvent(ctx, s.notifier, s.log, eventType, payload)
}

// emitEvent is fire-and-forget: delivery failures are logged and dropped,
// never propagated to the caller.
func emitEvent(ctx context.Context, notifier notify.Notifier, log zerolog.Logger, eventType string, payload map[string]interface{}) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, eventType, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("event delivery failed")
	}
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrLocked):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
