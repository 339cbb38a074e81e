package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

// ContractStore is the postgres-backed aggregate repository. Mutations run
// inside a transaction holding the contract's row lock (SELECT FOR UPDATE
// under a bounded lock_timeout) so two writers on the same contract never
// interleave; a writer that cannot get the lock in time gets ErrLocked
// instead of queueing forever.
type ContractStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewContractStore(db *gorm.DB, lockTimeout time.Duration) *ContractStore {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &ContractStore{db: db, lockTimeout: lockTimeout}
}

type contractRow struct {
	ID             uuid.UUID
	Title          string
	Description    string
	Stage          string
	AcceptedBidID  *uuid.UUID
	CreatedBy      uuid.UUID
	BidSubmittedAt *time.Time
	BidApprovedAt  *time.Time
	InactiveAt     *time.Time
	QueuedAt       *time.Time
	ActivatedAt    *time.Time
	PausedAt       *time.Time
	CompletedAt    *time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const contractColumns = `
	id, title, description, stage, accepted_bid_id, created_by,
	bid_submitted_at, bid_approved_at, inactive_at, queued_at,
	activated_at, paused_at, completed_at, closed_at,
	created_at, updated_at`

func (row contractRow) toModel() model.Contract {
	return model.Contract{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		Stage:          model.Stage(row.Stage),
		AcceptedBidID:  row.AcceptedBidID,
		CreatedBy:      row.CreatedBy,
		BidSubmittedAt: row.BidSubmittedAt,
		BidApprovedAt:  row.BidApprovedAt,
		InactiveAt:     row.InactiveAt,
		QueuedAt:       row.QueuedAt,
		ActivatedAt:    row.ActivatedAt,
		PausedAt:       row.PausedAt,
		CompletedAt:    row.CompletedAt,
		ClosedAt:       row.ClosedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func (s *ContractStore) CreateContract(ctx context.Context, contract *model.Contract, created model.StageTransition) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
			INSERT INTO contracts (id, title, description, stage, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, contract.ID, contract.Title, contract.Description, string(contract.Stage),
			contract.CreatedBy, contract.CreatedAt, contract.UpdatedAt).Error; err != nil {
			return err
		}
		for _, teamID := range contract.TeamIDs {
			if err := tx.Exec(`INSERT INTO contract_teams (contract_id, team_id) VALUES (?, ?)`,
				contract.ID, teamID).Error; err != nil {
				return err
			}
		}
		for _, kpiID := range contract.KPIIDs {
			if err := tx.Exec(`INSERT INTO contract_kpis (contract_id, kpi_id) VALUES (?, ?)`,
				contract.ID, kpiID).Error; err != nil {
				return err
			}
		}
		for _, milestone := range contract.Milestones {
			if err := insertMilestone(tx, milestone); err != nil {
				return err
			}
		}
		return insertTransition(tx, created)
	})
	return classify(err)
}

func insertMilestone(tx *gorm.DB, m model.Milestone) error {
	if err := tx.Exec(`
		INSERT INTO milestones (id, contract_id, order_index, name, status)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ContractID, m.OrderIndex, m.Name, string(m.Status)).Error; err != nil {
		return err
	}
	for _, dep := range m.DependsOn {
		if err := tx.Exec(`INSERT INTO milestone_deps (milestone_id, depends_on_id) VALUES (?, ?)`,
			m.ID, dep).Error; err != nil {
			return err
		}
	}
	for _, assignee := range m.Assignees {
		if err := tx.Exec(`INSERT INTO milestone_assignees (milestone_id, user_id) VALUES (?, ?)`,
			m.ID, assignee).Error; err != nil {
			return err
		}
	}
	return nil
}

func insertTransition(tx *gorm.DB, t model.StageTransition) error {
	var from *string
	if t.FromStage != nil {
		value := string(*t.FromStage)
		from = &value
	}
	return tx.Exec(`
		INSERT INTO stage_transitions (id, contract_id, from_stage, to_stage, actor_id, actor_role, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ContractID, from, string(t.ToStage), t.ActorID, string(t.ActorRole), t.Reason, t.CreatedAt).Error
}

func (s *ContractStore) GetContract(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	contract, err := s.loadContract(s.db.WithContext(ctx), id, false)
	if err != nil {
		return nil, classify(err)
	}
	return contract, nil
}

func (s *ContractStore) loadContract(tx *gorm.DB, id uuid.UUID, forUpdate bool) (*model.Contract, error) {
	query := `SELECT` + contractColumns + ` FROM contracts WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row contractRow
	if err := tx.Raw(query, id).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, ErrNotFound
	}

	contract := row.toModel()
	if err := tx.Raw(`SELECT team_id FROM contract_teams WHERE contract_id = ?`, id).
		Scan(&contract.TeamIDs).Error; err != nil {
		return nil, err
	}
	if err := tx.Raw(`SELECT kpi_id FROM contract_kpis WHERE contract_id = ?`, id).
		Scan(&contract.KPIIDs).Error; err != nil {
		return nil, err
	}
	if err := tx.Raw(`SELECT id FROM bids WHERE contract_id = ? ORDER BY submitted_at ASC`, id).
		Scan(&contract.BidIDs).Error; err != nil {
		return nil, err
	}

	milestones, err := loadMilestones(tx, id)
	if err != nil {
		return nil, err
	}
	contract.Milestones = milestones
	return &contract, nil
}

func loadMilestones(tx *gorm.DB, contractID uuid.UUID) ([]model.Milestone, error) {
	var rows []struct {
		ID         uuid.UUID
		ContractID uuid.UUID
		OrderIndex int
		Name       string
		Status     string
	}
	if err := tx.Raw(`
		SELECT id, contract_id, order_index, name, status
		FROM milestones
		WHERE contract_id = ?
		ORDER BY order_index ASC
	`, contractID).Scan(&rows).Error; err != nil {
		return nil, err
	}

	milestones := make([]model.Milestone, 0, len(rows))
	for _, row := range rows {
		milestone := model.Milestone{
			ID:         row.ID,
			ContractID: row.ContractID,
			OrderIndex: row.OrderIndex,
			Name:       row.Name,
			Status:     model.MilestoneStatus(row.Status),
		}
		if err := tx.Raw(`SELECT depends_on_id FROM milestone_deps WHERE milestone_id = ?`, row.ID).
			Scan(&milestone.DependsOn).Error; err != nil {
			return nil, err
		}
		if err := tx.Raw(`SELECT user_id FROM milestone_assignees WHERE milestone_id = ?`, row.ID).
			Scan(&milestone.Assignees).Error; err != nil {
			return nil, err
		}
		milestones = append(milestones, milestone)
	}
	return milestones, nil
}

type bidRow struct {
	ID          uuid.UUID
	ContractID  uuid.UUID
	BidderID    uuid.UUID
	Amount      float64
	Terms       string
	Status      string
	Reason      *string
	SubmittedAt time.Time
	EvaluatedAt *time.Time
}

const bidColumns = `id, contract_id, bidder_id, amount, terms, status, reason, submitted_at, evaluated_at`

func (row bidRow) toModel() model.Bid {
	return model.Bid{
		ID:          row.ID,
		ContractID:  row.ContractID,
		BidderID:    row.BidderID,
		Amount:      row.Amount,
		Terms:       row.Terms,
		Status:      model.BidStatus(row.Status),
		Reason:      row.Reason,
		SubmittedAt: row.SubmittedAt,
		EvaluatedAt: row.EvaluatedAt,
	}
}

func (s *ContractStore) GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error) {
	var row bidRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT `+bidColumns+` FROM bids WHERE id = ?
	`, id).Scan(&row).Error
	if err != nil {
		return nil, classify(err)
	}
	if row.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	bid := row.toModel()
	return &bid, nil
}

func (s *ContractStore) ListBids(ctx context.Context, contractID uuid.UUID) ([]model.Bid, error) {
	bids, err := listBids(s.db.WithContext(ctx), contractID)
	if err != nil {
		return nil, classify(err)
	}
	return bids, nil
}

func listBids(tx *gorm.DB, contractID uuid.UUID) ([]model.Bid, error) {
	var rows []bidRow
	if err := tx.Raw(`
		SELECT `+bidColumns+`
		FROM bids
		WHERE contract_id = ?
		ORDER BY submitted_at ASC
	`, contractID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	bids := make([]model.Bid, 0, len(rows))
	for _, row := range rows {
		bids = append(bids, row.toModel())
	}
	return bids, nil
}

func (s *ContractStore) ListContracts(ctx context.Context, filter model.ContractFilter) ([]model.Contract, error) {
	query := `SELECT` + contractColumns + ` FROM contracts`
	var conditions []string
	var args []interface{}

	if filter.Stage != nil {
		conditions = append(conditions, `stage = ?`)
		args = append(args, string(*filter.Stage))
	}
	if filter.TeamID != nil {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM contract_teams ct
			WHERE ct.contract_id = contracts.id AND ct.team_id = ?
		)`)
		args = append(args, *filter.TeamID)
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []contractRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, classify(err)
	}
	contracts := make([]model.Contract, 0, len(rows))
	for _, row := range rows {
		contracts = append(contracts, row.toModel())
	}
	return contracts, nil
}

func (s *ContractStore) ListTransitions(ctx context.Context, contractID uuid.UUID) ([]model.StageTransition, error) {
	var rows []struct {
		ID         uuid.UUID
		ContractID uuid.UUID
		FromStage  *string
		ToStage    string
		ActorID    uuid.UUID
		ActorRole  string
		Reason     string
		CreatedAt  time.Time
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, contract_id, from_stage, to_stage, actor_id, actor_role, reason, created_at
		FROM stage_transitions
		WHERE contract_id = ?
		ORDER BY created_at ASC, id ASC
	`, contractID).Scan(&rows).Error
	if err != nil {
		return nil, classify(err)
	}

	transitions := make([]model.StageTransition, 0, len(rows))
	for _, row := range rows {
		transition := model.StageTransition{
			ID:         row.ID,
			ContractID: row.ContractID,
			ToStage:    model.Stage(row.ToStage),
			ActorID:    row.ActorID,
			ActorRole:  model.Role(row.ActorRole),
			Reason:     row.Reason,
			CreatedAt:  row.CreatedAt,
		}
		if row.FromStage != nil {
			from := model.Stage(*row.FromStage)
			transition.FromStage = &from
		}
		transitions = append(transitions, transition)
	}
	return transitions, nil
}

// UpdateAggregate loads the contract and its bids under the row lock, runs
// fn, and persists the contract, bid changes and appended audit records in
// the same transaction. The audit insert commits with the mutation or not
// at all.
func (s *ContractStore) UpdateAggregate(ctx context.Context, contractID uuid.UUID, fn func(agg *Aggregate) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockTimeout.Milliseconds())).Error; err != nil {
			return err
		}
		contract, err := s.loadContract(tx, contractID, true)
		if err != nil {
			return err
		}
		bids, err := listBids(tx, contractID)
		if err != nil {
			return err
		}

		agg := &Aggregate{Contract: *contract, Bids: bids}
		if err := fn(agg); err != nil {
			return err
		}

		if err := saveContract(tx, agg.Contract); err != nil {
			return err
		}

		added := make(map[uuid.UUID]bool, len(agg.addedBids))
		for _, id := range agg.addedBids {
			added[id] = true
		}
		for _, bid := range agg.Bids {
			if added[bid.ID] {
				if err := insertBid(tx, bid); err != nil {
					return err
				}
				continue
			}
			if err := updateBid(tx, bid); err != nil {
				return err
			}
		}

		for _, transition := range agg.AppendedTransitions() {
			if err := insertTransition(tx, transition); err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err)
}

func saveContract(tx *gorm.DB, c model.Contract) error {
	return tx.Exec(`
		UPDATE contracts SET
			stage = ?,
			accepted_bid_id = ?,
			bid_submitted_at = ?,
			bid_approved_at = ?,
			inactive_at = ?,
			queued_at = ?,
			activated_at = ?,
			paused_at = ?,
			completed_at = ?,
			closed_at = ?,
			updated_at = ?
		WHERE id = ?
	`, string(c.Stage), c.AcceptedBidID,
		c.BidSubmittedAt, c.BidApprovedAt, c.InactiveAt, c.QueuedAt,
		c.ActivatedAt, c.PausedAt, c.CompletedAt, c.ClosedAt,
		c.UpdatedAt, c.ID).Error
}

func insertBid(tx *gorm.DB, b model.Bid) error {
	return tx.Exec(`
		INSERT INTO bids (id, contract_id, bidder_id, amount, terms, status, reason, submitted_at, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.ContractID, b.BidderID, b.Amount, b.Terms, string(b.Status), b.Reason, b.SubmittedAt, b.EvaluatedAt).Error
}

func updateBid(tx *gorm.DB, b model.Bid) error {
	return tx.Exec(`
		UPDATE bids SET status = ?, reason = ?, evaluated_at = ? WHERE id = ?
	`, string(b.Status), b.Reason, b.EvaluatedAt, b.ID).Error
}

// classify maps driver-level failures onto the repository's error kinds:
// 55P03 (lock_not_available) means another writer holds the aggregate,
// class 08 means the database itself is unreachable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "55P03" {
			return fmt.Errorf("%w: %s", ErrLocked, pgErr.Message)
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %s", ErrUnavailable, pgErr.Message)
		}
	}
	return err
}
