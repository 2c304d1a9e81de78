/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Campaign operations lock the campaign row with SELECT ... FOR UPDATE for the
 * lifetime of a pgx transaction, which makes the campaign row the single point
 * of contention for the hard-cap and settlement invariants.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/ido-service/internal/domain"
)

var (
	ErrCampaignExists   = errors.New("campaign already exists")
	ErrCampaignMismatch = errors.New("record does not belong to the locked campaign")
)

const campaignColumns = `id, authority, token_mint, currency_asset, currency_treasury, token_treasury,
	start_sale_time, end_sale_time, cliff, vesting_end_time,
	price, allocation, soft_cap, hard_cap, available_tokens_after_cliff_pct, available_allocations_per_participant,
	total_sold, total_participants, total_claimed,
	token_supply_deposited, sale_closed, funds_withdrawn, cancelled,
	version, created_at, updated_at`

const participationColumns = `campaign_id, participant, entitlement_amount, paid_amount, claimed_amount, joined_at`

// querier is the subset of pgx shared by the pool and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.Authority, &c.TokenMint, &c.CurrencyAsset, &c.CurrencyTreasury, &c.TokenTreasury,
		&c.StartSaleTime, &c.EndSaleTime, &c.Cliff, &c.VestingEndTime,
		&c.Price, &c.Allocation, &c.SoftCap, &c.HardCap, &c.AvailableTokensAfterCliffPct, &c.AvailableAllocationsPerParticipant,
		&c.TotalSold, &c.TotalParticipants, &c.TotalClaimed,
		&c.TokenSupplyDeposited, &c.SaleClosed, &c.FundsWithdrawn, &c.Cancelled,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

func findParticipation(ctx context.Context, q querier, campaignID uuid.UUID, participant string) (*domain.Participation, error) {
	var p domain.Participation
	err := q.QueryRow(ctx,
		"SELECT "+participationColumns+" FROM participations WHERE campaign_id = $1 AND participant = $2",
		campaignID, participant,
	).Scan(&p.CampaignID, &p.Participant, &p.EntitlementAmount, &p.PaidAmount, &p.ClaimedAmount, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipationNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateCampaign inserts a new campaign record.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	query := `INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err := r.db.Exec(ctx, query,
		c.ID, c.Authority, c.TokenMint, c.CurrencyAsset, c.CurrencyTreasury, c.TokenTreasury,
		c.StartSaleTime, c.EndSaleTime, c.Cliff, c.VestingEndTime,
		c.Price, c.Allocation, c.SoftCap, c.HardCap, c.AvailableTokensAfterCliffPct, c.AvailableAllocationsPerParticipant,
		c.TotalSold, c.TotalParticipants, c.TotalClaimed,
		c.TokenSupplyDeposited, c.SaleClosed, c.FundsWithdrawn, c.Cancelled,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCampaignExists
		}
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

// FindCampaignByID retrieves a campaign without locking it.
func (r *PostgresRepository) FindCampaignByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return scanCampaign(r.db.QueryRow(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = $1", id))
}

// FindParticipation retrieves a participant's record in a campaign.
func (r *PostgresRepository) FindParticipation(ctx context.Context, campaignID uuid.UUID, participant string) (*domain.Participation, error) {
	return findParticipation(ctx, r.db, campaignID, participant)
}

// ListSettlements returns the settlement audit trail of a campaign, oldest first.
func (r *PostgresRepository) ListSettlements(ctx context.Context, campaignID uuid.UUID) ([]domain.SettlementRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, campaign_id, operation, actor, idempotency_key, ledger_reference, transfers, created_at
		FROM settlements WHERE campaign_id = $1 ORDER BY created_at ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var records []domain.SettlementRecord
	for rows.Next() {
		var (
			s         domain.SettlementRecord
			operation string
			transfers []byte
		)
		if err := rows.Scan(&s.ID, &s.CampaignID, &operation, &s.Actor, &s.IdempotencyKey, &s.LedgerReference, &transfers, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		s.Operation = domain.Operation(operation)
		if err := json.Unmarshal(transfers, &s.Transfers); err != nil {
			return nil, fmt.Errorf("failed to decode settlement transfers: %w", err)
		}
		records = append(records, s)
	}
	return records, rows.Err()
}

// ListSoftCapCloseCandidates returns campaigns that ended below their soft cap and are still unclosed.
func (r *PostgresRepository) ListSoftCapCloseCandidates(ctx context.Context, now int64, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM campaigns
		WHERE sale_closed = FALSE AND funds_withdrawn = FALSE AND end_sale_time <= $1 AND total_sold < soft_cap
		ORDER BY end_sale_time ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query soft cap candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan soft cap candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithCampaignLock locks the campaign row for the duration of fn and commits
// only when fn succeeds.
func (r *PostgresRepository) WithCampaignLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx CampaignTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Use FOR UPDATE to serialize writers on this campaign.
	c, err := scanCampaign(tx.QueryRow(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return err
	}

	if err := fn(ctx, &postgresTx{tx: tx, campaign: *c}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx       pgx.Tx
	campaign domain.Campaign
}

func (t *postgresTx) Campaign() domain.Campaign {
	return t.campaign
}

func (t *postgresTx) FindParticipation(ctx context.Context, participant string) (*domain.Participation, error) {
	return findParticipation(ctx, t.tx, t.campaign.ID, participant)
}

func (t *postgresTx) SaveCampaign(ctx context.Context, c domain.Campaign) error {
	if c.ID != t.campaign.ID {
		return ErrCampaignMismatch
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE campaigns SET
			total_sold = $2, total_participants = $3, total_claimed = $4,
			token_supply_deposited = $5, sale_closed = $6, funds_withdrawn = $7, cancelled = $8,
			version = $9, updated_at = $10
		WHERE id = $1`,
		c.ID, c.TotalSold, c.TotalParticipants, c.TotalClaimed,
		c.TokenSupplyDeposited, c.SaleClosed, c.FundsWithdrawn, c.Cancelled,
		c.Version, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	t.campaign = c
	return nil
}

func (t *postgresTx) SaveParticipation(ctx context.Context, p domain.Participation) error {
	if p.CampaignID != t.campaign.ID {
		return ErrCampaignMismatch
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO participations (`+participationColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id, participant) DO UPDATE SET
			entitlement_amount = EXCLUDED.entitlement_amount,
			paid_amount = EXCLUDED.paid_amount,
			claimed_amount = EXCLUDED.claimed_amount,
			updated_at = EXCLUDED.updated_at`,
		p.CampaignID, p.Participant, p.EntitlementAmount, p.PaidAmount, p.ClaimedAmount, p.JoinedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert participation: %w", err)
	}
	return nil
}

func (t *postgresTx) RecordSettlement(ctx context.Context, s domain.SettlementRecord) error {
	transfers, err := json.Marshal(s.Transfers)
	if err != nil {
		return fmt.Errorf("failed to encode settlement transfers: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO settlements (id, campaign_id, operation, actor, idempotency_key, ledger_reference, transfers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.CampaignID, string(s.Operation), s.Actor, s.IdempotencyKey, s.LedgerReference, transfers, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}
