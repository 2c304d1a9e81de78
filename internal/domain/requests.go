package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreateCampaignRequest is the payload for creating a new campaign.
type CreateCampaignRequest struct {
	TokenMint                          string `json:"token_mint"`
	StartSaleTime                      int64  `json:"start_sale_time"`
	EndSaleTime                        int64  `json:"end_sale_time"`
	Cliff                              int64  `json:"cliff"`
	VestingEndTime                     int64  `json:"vesting_end_time"`
	Price                              uint64 `json:"price"`
	Allocation                         uint64 `json:"allocation"`
	SoftCap                            uint64 `json:"soft_cap"`
	HardCap                            uint64 `json:"hard_cap"`
	AvailableTokensAfterCliffPct       uint8  `json:"available_tokens_after_cliff_pct"`
	AvailableAllocationsPerParticipant uint64 `json:"available_allocations_per_participant"`
}

// JoinRequest is the payload for joining a campaign.
type JoinRequest struct {
	Units uint64 `json:"units"`
}

// CampaignView is a campaign together with its lifecycle state at read time.
type CampaignView struct {
	Campaign
	State State `json:"state"`
}

// ParticipationView is a participation together with its currently claimable amount.
type ParticipationView struct {
	Participation
	Claimable uint64 `json:"claimable"`
}

// OperationResult is returned by every state-changing campaign operation.
type OperationResult struct {
	Campaign        CampaignView   `json:"campaign"`
	Participation   *Participation `json:"participation,omitempty"`
	Transfers       []Transfer     `json:"transfers"`
	LedgerReference string         `json:"ledger_reference,omitempty"`
}

// CampaignEvent is published after a campaign operation commits.
type CampaignEvent struct {
	EventID         uuid.UUID  `json:"event_id"`
	CampaignID      uuid.UUID  `json:"campaign_id"`
	Operation       Operation  `json:"operation"`
	Actor           string     `json:"actor"`
	State           State      `json:"state"`
	TotalSold       uint64     `json:"total_sold"`
	TotalClaimed    uint64     `json:"total_claimed"`
	Transfers       []Transfer `json:"transfers"`
	LedgerReference string     `json:"ledger_reference,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// RoutingKey returns the topic routing key for the event.
func (e CampaignEvent) RoutingKey() string {
	return "ido.campaign." + string(e.Operation)
}

// MessageID lets consumers deduplicate redelivered events.
func (e CampaignEvent) MessageID() string {
	return e.EventID.String()
}
