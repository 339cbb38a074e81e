package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/repository"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/service"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, eventType string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, event := range n.events {
		if event == eventType {
			total++
		}
	}
	return total
}

type fixture struct {
	contracts *service.ContractService
	bids      *service.BidService
	notifier  *recordingNotifier

	admin      model.Principal
	manager    model.Principal
	teamLead   model.Principal
	specialist model.Principal
	bidderA    model.Principal
	bidderB    model.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(time.Second)
	notifier := &recordingNotifier{}
	log := zerolog.Nop()
	return &fixture{
		contracts:  service.NewContractService(store, notifier, log),
		bids:       service.NewBidService(store, notifier, log),
		notifier:   notifier,
		admin:      model.Principal{UserID: uuid.New(), Role: model.RoleAdmin},
		manager:    model.Principal{UserID: uuid.New(), Role: model.RoleManager},
		teamLead:   model.Principal{UserID: uuid.New(), Role: model.RoleTeamLead},
		specialist: model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist},
		bidderA:    model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist},
		bidderB:    model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist},
	}
}

// createContract makes a contract that satisfies the activation
// preconditions (one team, one milestone).
func (f *fixture) createContract(t *testing.T) *model.Contract {
	t.Helper()
	contract, err := f.contracts.CreateContract(context.Background(), service.CreateContractInput{
		Title:       "Warehouse automation rollout",
		Description: "Phase one",
		TeamIDs:     []uuid.UUID{uuid.New()},
		Milestones: []service.MilestoneInput{
			{Name: "Site survey"},
			{Name: "Install", DependsOn: []int{0}},
		},
		Principal: f.manager,
	})
	require.NoError(t, err)
	return contract
}

// createBareContract makes a contract with no teams and no milestones.
func (f *fixture) createBareContract(t *testing.T) *model.Contract {
	t.Helper()
	contract, err := f.contracts.CreateContract(context.Background(), service.CreateContractInput{
		Title:     "Unstaffed engagement",
		Principal: f.manager,
	})
	require.NoError(t, err)
	return contract
}

// advance walks the contract through the given stages as the manager.
func (f *fixture) advance(t *testing.T, contractID uuid.UUID, stages ...model.Stage) *model.Contract {
	t.Helper()
	var contract *model.Contract
	var err error
	for _, stage := range stages {
		contract, err = f.contracts.Transition(context.Background(), service.TransitionInput{
			ContractID: contractID,
			ToStage:    stage,
			Reason:     "test walk",
			Principal:  f.manager,
		})
		require.NoError(t, err, "transition to %s", stage)
	}
	return contract
}
