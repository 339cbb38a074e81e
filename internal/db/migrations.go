package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'contract_stage') THEN
			CREATE TYPE contract_stage AS ENUM (
				'PROPOSAL', 'BID_SUBMITTED', 'BID_APPROVED', 'INACTIVE',
				'QUEUED', 'ACTIVE', 'PAUSED', 'COMPLETED', 'CLOSED'
			);
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'bid_status') THEN
			CREATE TYPE bid_status AS ENUM ('PENDING', 'ACCEPTED', 'REJECTED', 'WITHDRAWN');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'milestone_status') THEN
			CREATE TYPE milestone_status AS ENUM ('PENDING', 'IN_PROGRESS', 'COMPLETED', 'BLOCKED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		stage contract_stage NOT NULL DEFAULT 'PROPOSAL',
		accepted_bid_id UUID,
		created_by UUID NOT NULL,
		bid_submitted_at TIMESTAMPTZ,
		bid_approved_at TIMESTAMPTZ,
		inactive_at TIMESTAMPTZ,
		queued_at TIMESTAMPTZ,
		activated_at TIMESTAMPTZ,
		paused_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_stage ON contracts (stage);`,
	`CREATE TABLE IF NOT EXISTS contract_teams (
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		team_id UUID NOT NULL,
		PRIMARY KEY (contract_id, team_id)
	);`,
	`CREATE TABLE IF NOT EXISTS contract_kpis (
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		kpi_id UUID NOT NULL,
		PRIMARY KEY (contract_id, kpi_id)
	);`,
	`CREATE TABLE IF NOT EXISTS milestones (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		order_index INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		status milestone_status NOT NULL DEFAULT 'PENDING'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_milestones_contract_id ON milestones (contract_id);`,
	`CREATE TABLE IF NOT EXISTS milestone_deps (
		milestone_id UUID NOT NULL REFERENCES milestones(id) ON DELETE CASCADE,
		depends_on_id UUID NOT NULL REFERENCES milestones(id),
		PRIMARY KEY (milestone_id, depends_on_id)
	);`,
	`CREATE TABLE IF NOT EXISTS milestone_assignees (
		milestone_id UUID NOT NULL REFERENCES milestones(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		PRIMARY KEY (milestone_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		bidder_id UUID NOT NULL,
		amount NUMERIC(18,2) NOT NULL DEFAULT 0,
		terms TEXT NOT NULL DEFAULT '',
		status bid_status NOT NULL DEFAULT 'PENDING',
		reason TEXT,
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		evaluated_at TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_bids_contract_id ON bids (contract_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_open_per_bidder
		ON bids (contract_id, bidder_id) WHERE status <> 'WITHDRAWN';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_accepted_per_contract
		ON bids (contract_id) WHERE status = 'ACCEPTED';`,
	`CREATE TABLE IF NOT EXISTS stage_transitions (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		from_stage contract_stage,
		to_stage contract_stage NOT NULL,
		actor_id UUID NOT NULL,
		actor_role VARCHAR(32) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_stage_transitions_contract_id ON stage_transitions (contract_id, created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
