/**
 * @description
 * This file defines the core domain models for the ido-service. These structs
 * mirror the persisted campaign and participation records and are shared by the
 * lifecycle guard, the store and the API layer.
 *
 * @dependencies
 * - time: Standard Go library for audit timestamps.
 * - github.com/google/uuid: For campaign identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeePercent is the fixed platform share of the raised currency taken at withdrawal.
const FeePercent = 5

// Campaign is the aggregate record of a single token sale.
// Schedule values are unix seconds. Amounts are in the smallest unit of their asset.
type Campaign struct {
	ID               uuid.UUID `json:"id"`
	Authority        string    `json:"authority"`
	TokenMint        string    `json:"token_mint"`
	CurrencyAsset    string    `json:"currency_asset"`
	CurrencyTreasury string    `json:"currency_treasury"`
	TokenTreasury    string    `json:"token_treasury"`

	StartSaleTime  int64 `json:"start_sale_time"`
	EndSaleTime    int64 `json:"end_sale_time"`
	Cliff          int64 `json:"cliff"`
	VestingEndTime int64 `json:"vesting_end_time"`

	// Price is the cost of one token in the smallest currency unit.
	Price                              uint64 `json:"price"`
	Allocation                         uint64 `json:"allocation"`
	SoftCap                            uint64 `json:"soft_cap"`
	HardCap                            uint64 `json:"hard_cap"`
	AvailableTokensAfterCliffPct       uint8  `json:"available_tokens_after_cliff_pct"`
	AvailableAllocationsPerParticipant uint64 `json:"available_allocations_per_participant"`

	TotalSold         uint64 `json:"total_sold"`
	TotalParticipants uint64 `json:"total_participants"`
	TotalClaimed      uint64 `json:"total_claimed"`

	TokenSupplyDeposited bool `json:"token_supply_deposited"`
	SaleClosed           bool `json:"sale_closed"`
	FundsWithdrawn       bool `json:"funds_withdrawn"`
	Cancelled            bool `json:"cancelled"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participation records one participant's purchase in a campaign.
type Participation struct {
	CampaignID        uuid.UUID `json:"campaign_id"`
	Participant       string    `json:"participant"`
	EntitlementAmount uint64    `json:"entitlement_amount"`
	PaidAmount        uint64    `json:"paid_amount"`
	ClaimedAmount     uint64    `json:"claimed_amount"`
	JoinedAt          int64     `json:"joined_at"`
}

// Transfer is a single balance movement produced by a lifecycle decision.
// SourceEscrow names the escrow label when the source is a campaign treasury;
// it is empty when the caller's own account is debited.
type Transfer struct {
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	Asset        string `json:"asset"`
	Amount       uint64 `json:"amount"`
	SourceEscrow string `json:"source_escrow,omitempty"`
}

// SettlementRecord is the audit trail for a dispatched transfer batch.
type SettlementRecord struct {
	ID              uuid.UUID  `json:"id"`
	CampaignID      uuid.UUID  `json:"campaign_id"`
	Operation       Operation  `json:"operation"`
	Actor           string     `json:"actor"`
	IdempotencyKey  string     `json:"idempotency_key"`
	LedgerReference string     `json:"ledger_reference"`
	Transfers       []Transfer `json:"transfers"`
	CreatedAt       time.Time  `json:"created_at"`
}
