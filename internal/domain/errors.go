package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the lifecycle guard wraps exactly one of these.
var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidSchedule          = errors.New("invalid schedule")
	ErrInvalidEconomicParameter = errors.New("invalid economic parameter")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
	ErrPreconditionNotMet       = errors.New("precondition not met")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrNothingToDo              = errors.New("nothing to do")
)

var ErrCampaignNotFound = errors.New("campaign not found")

// Schedule errors.
var (
	ErrInvalidStartSaleTime = fmt.Errorf("%w: start sale time must be in the future", ErrInvalidSchedule)
	ErrInvalidSalePeriod    = fmt.Errorf("%w: end sale time must be after start sale time", ErrInvalidSchedule)
	ErrInvalidCliff         = fmt.Errorf("%w: cliff must be after end sale time", ErrInvalidSchedule)
	ErrInvalidVestingPeriod = fmt.Errorf("%w: vesting end time must be after cliff", ErrInvalidSchedule)
)

// Economic parameter errors.
var (
	ErrInvalidPrice                     = fmt.Errorf("%w: price must be positive", ErrInvalidEconomicParameter)
	ErrInvalidAllocation                = fmt.Errorf("%w: allocation must be positive", ErrInvalidEconomicParameter)
	ErrInvalidAllocationsPerParticipant = fmt.Errorf("%w: allocations per participant must be positive", ErrInvalidEconomicParameter)
	ErrInvalidUnlockPercent             = fmt.Errorf("%w: unlock percent must be within 0..100", ErrInvalidEconomicParameter)
	ErrInvalidSoftCap                   = fmt.Errorf("%w: soft cap must be positive", ErrInvalidEconomicParameter)
	ErrInvalidHardCap                   = fmt.Errorf("%w: hard cap must exceed soft cap", ErrInvalidEconomicParameter)
	ErrInvalidTokenMint                 = fmt.Errorf("%w: token mint is required", ErrInvalidEconomicParameter)
)

// Precondition errors.
var (
	ErrIllegalTransition           = fmt.Errorf("%w: operation not allowed in current state", ErrPreconditionNotMet)
	ErrSaleAlreadyClosed           = fmt.Errorf("%w: sale already closed", ErrPreconditionNotMet)
	ErrSaleNotClosed               = fmt.Errorf("%w: sale not closed", ErrPreconditionNotMet)
	ErrSaleCancelled               = fmt.Errorf("%w: sale was cancelled", ErrPreconditionNotMet)
	ErrSaleNotStarted              = fmt.Errorf("%w: sale not started", ErrPreconditionNotMet)
	ErrSaleEnded                   = fmt.Errorf("%w: sale ended", ErrPreconditionNotMet)
	ErrSaleNotEnded                = fmt.Errorf("%w: sale not ended", ErrPreconditionNotMet)
	ErrTotalClaimedNotZero         = fmt.Errorf("%w: tokens already claimed", ErrPreconditionNotMet)
	ErrSoftCapNotReached           = fmt.Errorf("%w: soft cap not reached", ErrPreconditionNotMet)
	ErrSoftCapReached              = fmt.Errorf("%w: soft cap reached", ErrPreconditionNotMet)
	ErrFundsAlreadyWithdrawn       = fmt.Errorf("%w: funds already withdrawn", ErrPreconditionNotMet)
	ErrUserAlreadyJoined           = fmt.Errorf("%w: participant already joined", ErrPreconditionNotMet)
	ErrAllocationNotAvailable      = fmt.Errorf("%w: this allocation is not available", ErrPreconditionNotMet)
	ErrTokenSupplyNotDeposited     = fmt.Errorf("%w: token supply not deposited", ErrPreconditionNotMet)
	ErrTokenSupplyAlreadyDeposited = fmt.Errorf("%w: token supply already deposited", ErrPreconditionNotMet)
	ErrParticipationMismatch       = fmt.Errorf("%w: participation does not belong to campaign", ErrPreconditionNotMet)
	ErrFullyClaimed                = fmt.Errorf("%w: entitlement fully claimed", ErrPreconditionNotMet)
	ErrInvalidNumberOfAllocations  = fmt.Errorf("%w: invalid number of allocations", ErrPreconditionNotMet)
	ErrParticipationNotFound       = fmt.Errorf("%w: participation not found", ErrPreconditionNotMet)
)

// Balance errors.
var (
	ErrInsufficientFunds           = fmt.Errorf("%w: insufficient funds", ErrInsufficientBalance)
	ErrInsufficientFundsInTreasury = fmt.Errorf("%w: insufficient funds in treasury", ErrInsufficientBalance)
)

// Zero-amount errors.
var (
	ErrNothingToClaim  = fmt.Errorf("%w: nothing to claim", ErrNothingToDo)
	ErrNothingToRefund = fmt.Errorf("%w: nothing to refund", ErrNothingToDo)
)

// Overflowf wraps ErrArithmeticOverflow with the name of the overflowing quantity.
func Overflowf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArithmeticOverflow, fmt.Sprintf(format, args...))
}
