package campaign

import (
	"github.com/transfa/ido-service/internal/checked"
	"github.com/transfa/ido-service/internal/domain"
	"github.com/transfa/ido-service/internal/vesting"
	"github.com/transfa/ido-service/pkg/escrow"
)

// Decision is the outcome of a successful guard check. Campaign and
// Participation are updated copies; the inputs are never modified.
type Decision struct {
	Campaign      domain.Campaign
	Participation *domain.Participation
	Transfers     []domain.Transfer
}

// DepositInput is the context for depositing the token supply.
type DepositInput struct {
	Caller            string
	Now               int64
	OwnerTokenBalance uint64
}

// Deposit moves HardCap tokens from the owner into the token treasury.
func Deposit(c domain.Campaign, in DepositInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpDeposit); err != nil {
		return Decision{}, err
	}
	if in.Caller != c.Authority {
		return Decision{}, domain.ErrUnauthorized
	}
	if c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyAlreadyDeposited
	}
	if in.OwnerTokenBalance < c.HardCap {
		return Decision{}, domain.ErrInsufficientFunds
	}

	c.TokenSupplyDeposited = true
	return Decision{
		Campaign: c,
		Transfers: []domain.Transfer{{
			Source:      c.Authority,
			Destination: c.TokenTreasury,
			Asset:       c.TokenMint,
			Amount:      c.HardCap,
		}},
	}, nil
}

// JoinInput is the context for a participant buying allocations.
type JoinInput struct {
	Participant string
	Units       uint64
	Now         int64
	Balance     uint64
	Reserve     uint64
}

// Join admits a participant for Units allocations. existing is the caller's
// current participation, or nil.
func Join(c domain.Campaign, existing *domain.Participation, in JoinInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpJoin); err != nil {
		return Decision{}, err
	}
	if !c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyNotDeposited
	}
	if c.SaleClosed {
		return Decision{}, domain.ErrSaleAlreadyClosed
	}
	if c.FundsWithdrawn {
		return Decision{}, domain.ErrFundsAlreadyWithdrawn
	}
	if in.Units == 0 || in.Units > c.AvailableAllocationsPerParticipant {
		return Decision{}, domain.ErrInvalidNumberOfAllocations
	}
	if in.Now < c.StartSaleTime {
		return Decision{}, domain.ErrSaleNotStarted
	}
	if in.Now > c.EndSaleTime {
		return Decision{}, domain.ErrSaleEnded
	}

	amount, err := checked.Mul(in.Units, c.Allocation, "join amount")
	if err != nil {
		return Decision{}, err
	}
	cost, err := checked.Mul(amount, c.Price, "join cost")
	if err != nil {
		return Decision{}, err
	}
	sold, err := checked.Add(c.TotalSold, amount, "total sold")
	if err != nil {
		return Decision{}, err
	}
	if sold > c.HardCap {
		return Decision{}, domain.ErrAllocationNotAvailable
	}
	if existing != nil {
		return Decision{}, domain.ErrUserAlreadyJoined
	}
	required, err := checked.Add(cost, in.Reserve, "join cost with reserve")
	if err != nil {
		return Decision{}, err
	}
	if in.Balance < required {
		return Decision{}, domain.ErrInsufficientFunds
	}
	participants, err := checked.Add(c.TotalParticipants, 1, "total participants")
	if err != nil {
		return Decision{}, err
	}

	c.TotalSold = sold
	c.TotalParticipants = participants
	p := domain.Participation{
		CampaignID:        c.ID,
		Participant:       in.Participant,
		EntitlementAmount: amount,
		PaidAmount:        cost,
		JoinedAt:          in.Now,
	}
	return Decision{
		Campaign:      c,
		Participation: &p,
		Transfers: []domain.Transfer{{
			Source:      in.Participant,
			Destination: c.CurrencyTreasury,
			Asset:       c.CurrencyAsset,
			Amount:      cost,
		}},
	}, nil
}

// ClaimInput is the context for claiming vested tokens.
type ClaimInput struct {
	Participant          string
	Now                  int64
	TokenTreasuryBalance uint64
}

// Claim releases whatever portion of the participant's entitlement has vested
// and not yet been claimed.
func Claim(c domain.Campaign, p *domain.Participation, in ClaimInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpClaim); err != nil {
		return Decision{}, err
	}
	if p == nil {
		return Decision{}, domain.ErrParticipationNotFound
	}
	if p.CampaignID != c.ID {
		return Decision{}, domain.ErrParticipationMismatch
	}
	if p.Participant != in.Participant {
		return Decision{}, domain.ErrUnauthorized
	}
	if p.ClaimedAmount >= p.EntitlementAmount {
		return Decision{}, domain.ErrFullyClaimed
	}
	if !c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyNotDeposited
	}
	if c.TotalSold < c.SoftCap {
		return Decision{}, domain.ErrSoftCapNotReached
	}

	amount, err := vesting.Claimable(vesting.ScheduleOf(c), p.EntitlementAmount, p.ClaimedAmount, in.Now)
	if err != nil {
		return Decision{}, err
	}
	if amount == 0 {
		return Decision{}, domain.ErrNothingToClaim
	}
	if in.TokenTreasuryBalance < amount {
		return Decision{}, domain.ErrInsufficientFundsInTreasury
	}

	claimed, err := checked.Add(p.ClaimedAmount, amount, "claimed amount")
	if err != nil {
		return Decision{}, err
	}
	totalClaimed, err := checked.Add(c.TotalClaimed, amount, "total claimed")
	if err != nil {
		return Decision{}, err
	}

	updated := *p
	updated.ClaimedAmount = claimed
	c.TotalClaimed = totalClaimed
	return Decision{
		Campaign:      c,
		Participation: &updated,
		Transfers: []domain.Transfer{{
			Source:       c.TokenTreasury,
			Destination:  updated.Participant,
			Asset:        c.TokenMint,
			Amount:       amount,
			SourceEscrow: escrow.LabelTokenTreasury,
		}},
	}, nil
}

// CancelInput is the context for the owner cancelling a sale.
type CancelInput struct {
	Caller               string
	Now                  int64
	TokenTreasuryBalance uint64
}

// Cancel closes the sale before it ends and returns the whole token treasury
// to the owner. The currency treasury is left for refunds.
func Cancel(c domain.Campaign, in CancelInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpCancel); err != nil {
		return Decision{}, err
	}
	if c.SaleClosed {
		return Decision{}, domain.ErrSaleAlreadyClosed
	}
	if in.Now >= c.EndSaleTime {
		return Decision{}, domain.ErrSaleEnded
	}
	if c.FundsWithdrawn {
		return Decision{}, domain.ErrFundsAlreadyWithdrawn
	}
	if in.Caller != c.Authority {
		return Decision{}, domain.ErrUnauthorized
	}
	if c.TotalClaimed != 0 {
		return Decision{}, domain.ErrTotalClaimedNotZero
	}
	if !c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyNotDeposited
	}

	c.SaleClosed = true
	c.FundsWithdrawn = true
	c.Cancelled = true
	return Decision{
		Campaign: c,
		Transfers: []domain.Transfer{{
			Source:       c.TokenTreasury,
			Destination:  c.Authority,
			Asset:        c.TokenMint,
			Amount:       in.TokenTreasuryBalance,
			SourceEscrow: escrow.LabelTokenTreasury,
		}},
	}, nil
}

// CloseIfSoftCapNotReached closes a sale that ended below its soft cap so
// participants can be refunded. Anyone may call it and it moves no funds.
func CloseIfSoftCapNotReached(c domain.Campaign, now int64) (Decision, error) {
	if err := checkTransition(c, now, domain.OpCloseSoftCap); err != nil {
		return Decision{}, err
	}
	if c.SaleClosed {
		return Decision{}, domain.ErrSaleAlreadyClosed
	}
	if now < c.EndSaleTime {
		return Decision{}, domain.ErrSaleNotEnded
	}
	if c.TotalSold >= c.SoftCap {
		return Decision{}, domain.ErrSoftCapReached
	}

	c.SaleClosed = true
	return Decision{Campaign: c}, nil
}

// WithdrawInput is the context for the owner collecting a successful raise.
type WithdrawInput struct {
	Caller                  string
	Now                     int64
	FeeRecipient            string
	CurrencyTreasuryBalance uint64
	TokenTreasuryBalance    uint64
}

// Withdraw pays out the currency treasury to the fee recipient and the owner
// and returns unsold tokens to the owner.
func Withdraw(c domain.Campaign, in WithdrawInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpWithdraw); err != nil {
		return Decision{}, err
	}
	if c.FundsWithdrawn {
		return Decision{}, domain.ErrFundsAlreadyWithdrawn
	}
	if in.Caller != c.Authority {
		return Decision{}, domain.ErrUnauthorized
	}
	if in.Now < c.EndSaleTime {
		return Decision{}, domain.ErrSaleNotEnded
	}
	if !c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyNotDeposited
	}
	if c.TotalSold < c.SoftCap {
		return Decision{}, domain.ErrSoftCapNotReached
	}

	fee, ownerShare := SplitFee(in.CurrencyTreasuryBalance)
	unsold := checked.SaturatingSub(c.HardCap, c.TotalSold)
	if in.TokenTreasuryBalance < unsold {
		return Decision{}, domain.ErrInsufficientFundsInTreasury
	}

	c.FundsWithdrawn = true
	return Decision{
		Campaign: c,
		Transfers: []domain.Transfer{
			{
				Source:       c.CurrencyTreasury,
				Destination:  in.FeeRecipient,
				Asset:        c.CurrencyAsset,
				Amount:       fee,
				SourceEscrow: escrow.LabelCurrencyTreasury,
			},
			{
				Source:       c.CurrencyTreasury,
				Destination:  c.Authority,
				Asset:        c.CurrencyAsset,
				Amount:       ownerShare,
				SourceEscrow: escrow.LabelCurrencyTreasury,
			},
			{
				Source:       c.TokenTreasury,
				Destination:  c.Authority,
				Asset:        c.TokenMint,
				Amount:       unsold,
				SourceEscrow: escrow.LabelTokenTreasury,
			},
		},
	}, nil
}

// SplitFee divides balance into the platform fee and the owner's share.
// The fee is truncated to whole percent units before scaling.
func SplitFee(balance uint64) (fee, owner uint64) {
	fee = balance / 100 * domain.FeePercent
	return fee, balance - fee
}

// RecoverInput is the context for the owner reclaiming the token supply of a failed sale.
type RecoverInput struct {
	Caller               string
	Now                  int64
	TokenTreasuryBalance uint64
}

// RecoverTokens returns the whole token treasury to the owner after the sale
// closed below its soft cap.
func RecoverTokens(c domain.Campaign, in RecoverInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpRecoverTokens); err != nil {
		return Decision{}, err
	}
	if in.Caller != c.Authority {
		return Decision{}, domain.ErrUnauthorized
	}
	if !c.SaleClosed {
		return Decision{}, domain.ErrSaleNotClosed
	}
	if c.TotalSold >= c.SoftCap {
		return Decision{}, domain.ErrSoftCapReached
	}
	if c.FundsWithdrawn {
		return Decision{}, domain.ErrFundsAlreadyWithdrawn
	}
	if !c.TokenSupplyDeposited {
		return Decision{}, domain.ErrTokenSupplyNotDeposited
	}

	c.FundsWithdrawn = true
	return Decision{
		Campaign: c,
		Transfers: []domain.Transfer{{
			Source:       c.TokenTreasury,
			Destination:  c.Authority,
			Asset:        c.TokenMint,
			Amount:       in.TokenTreasuryBalance,
			SourceEscrow: escrow.LabelTokenTreasury,
		}},
	}, nil
}

// RefundInput is the context for a participant reclaiming their payment.
type RefundInput struct {
	Participant             string
	Now                     int64
	CurrencyTreasuryBalance uint64
}

// Refund returns the participant's payment from the currency treasury of a closed sale.
func Refund(c domain.Campaign, p *domain.Participation, in RefundInput) (Decision, error) {
	if err := checkTransition(c, in.Now, domain.OpRefund); err != nil {
		return Decision{}, err
	}
	if !c.SaleClosed {
		return Decision{}, domain.ErrSaleNotClosed
	}
	if p == nil {
		return Decision{}, domain.ErrParticipationNotFound
	}
	if p.CampaignID != c.ID {
		return Decision{}, domain.ErrParticipationMismatch
	}
	if p.Participant != in.Participant {
		return Decision{}, domain.ErrUnauthorized
	}
	if p.EntitlementAmount == 0 {
		return Decision{}, domain.ErrNothingToRefund
	}
	if in.CurrencyTreasuryBalance < p.PaidAmount {
		return Decision{}, domain.ErrInsufficientFundsInTreasury
	}

	updated := *p
	paid := updated.PaidAmount
	updated.EntitlementAmount = 0
	updated.PaidAmount = 0
	return Decision{
		Campaign:      c,
		Participation: &updated,
		Transfers: []domain.Transfer{{
			Source:       c.CurrencyTreasury,
			Destination:  updated.Participant,
			Asset:        c.CurrencyAsset,
			Amount:       paid,
			SourceEscrow: escrow.LabelCurrencyTreasury,
		}},
	}, nil
}
