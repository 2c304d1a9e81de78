package campaign

import (
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

// NewParams carries everything needed to create a campaign record.
type NewParams struct {
	ID               uuid.UUID
	Authority        string
	CurrencyAsset    string
	CurrencyTreasury string
	TokenTreasury    string
	Request          domain.CreateCampaignRequest
	Now              int64
}

// ValidateRequest checks the schedule and economics of a new campaign.
func ValidateRequest(req domain.CreateCampaignRequest, now int64) error {
	if req.StartSaleTime <= now {
		return domain.ErrInvalidStartSaleTime
	}
	if req.EndSaleTime <= req.StartSaleTime {
		return domain.ErrInvalidSalePeriod
	}
	if req.Cliff <= req.EndSaleTime {
		return domain.ErrInvalidCliff
	}
	if req.VestingEndTime <= req.Cliff {
		return domain.ErrInvalidVestingPeriod
	}

	if strings.TrimSpace(req.TokenMint) == "" {
		return domain.ErrInvalidTokenMint
	}
	if req.Price == 0 {
		return domain.ErrInvalidPrice
	}
	if req.Allocation == 0 {
		return domain.ErrInvalidAllocation
	}
	if req.AvailableAllocationsPerParticipant == 0 {
		return domain.ErrInvalidAllocationsPerParticipant
	}
	if req.AvailableTokensAfterCliffPct > 100 {
		return domain.ErrInvalidUnlockPercent
	}
	if req.SoftCap == 0 {
		return domain.ErrInvalidSoftCap
	}
	if req.HardCap <= req.SoftCap {
		return domain.ErrInvalidHardCap
	}
	return nil
}

// New validates p and returns the initial campaign record.
func New(p NewParams) (domain.Campaign, error) {
	if strings.TrimSpace(p.Authority) == "" {
		return domain.Campaign{}, domain.ErrUnauthorized
	}
	if err := ValidateRequest(p.Request, p.Now); err != nil {
		return domain.Campaign{}, err
	}

	req := p.Request
	return domain.Campaign{
		ID:                                 p.ID,
		Authority:                          p.Authority,
		TokenMint:                          strings.TrimSpace(req.TokenMint),
		CurrencyAsset:                      p.CurrencyAsset,
		CurrencyTreasury:                   p.CurrencyTreasury,
		TokenTreasury:                      p.TokenTreasury,
		StartSaleTime:                      req.StartSaleTime,
		EndSaleTime:                        req.EndSaleTime,
		Cliff:                              req.Cliff,
		VestingEndTime:                     req.VestingEndTime,
		Price:                              req.Price,
		Allocation:                         req.Allocation,
		SoftCap:                            req.SoftCap,
		HardCap:                            req.HardCap,
		AvailableTokensAfterCliffPct:       req.AvailableTokensAfterCliffPct,
		AvailableAllocationsPerParticipant: req.AvailableAllocationsPerParticipant,
	}, nil
}
