// Package campaign implements the campaign lifecycle guard. Every operation is a
// pure decision: it validates a campaign snapshot and returns the mutated
// records plus the transfers to dispatch, or an error and no changes.
package campaign

import (
	"fmt"

	"github.com/transfa/ido-service/internal/domain"
)

// StateAt derives the lifecycle state of c at now.
// SaleClosed is checked before FundsWithdrawn because a failed sale whose token
// supply was recovered still has refunds outstanding.
func StateAt(c domain.Campaign, now int64) domain.State {
	switch {
	case c.Cancelled:
		return domain.StateCancelled
	case c.SaleClosed:
		return domain.StateClosedAwaitingSettlement
	case c.FundsWithdrawn:
		return domain.StateSettled
	case now < c.StartSaleTime:
		return domain.StatePreSale
	case now <= c.EndSaleTime:
		return domain.StateOpen
	default:
		return domain.StateEndedUnresolved
	}
}

// transitions is the legal-transition table: the states in which each operation may run.
var transitions = map[domain.Operation]map[domain.State]bool{
	domain.OpDeposit:       {domain.StatePreSale: true, domain.StateOpen: true},
	domain.OpJoin:          {domain.StateOpen: true},
	domain.OpClaim:         {domain.StateEndedUnresolved: true, domain.StateSettled: true},
	domain.OpCancel:        {domain.StatePreSale: true, domain.StateOpen: true},
	domain.OpCloseSoftCap:  {domain.StateOpen: true, domain.StateEndedUnresolved: true},
	domain.OpWithdraw:      {domain.StateOpen: true, domain.StateEndedUnresolved: true},
	domain.OpRecoverTokens: {domain.StateClosedAwaitingSettlement: true},
	domain.OpRefund:        {domain.StateCancelled: true, domain.StateClosedAwaitingSettlement: true},
}

// Allowed reports whether op may run while the campaign is in state.
func Allowed(state domain.State, op domain.Operation) bool {
	return transitions[op][state]
}

// checkTransition rejects op when the table forbids it in the campaign's current state.
func checkTransition(c domain.Campaign, now int64, op domain.Operation) error {
	state := StateAt(c, now)
	if Allowed(state, op) {
		return nil
	}
	return fmt.Errorf("%s not allowed while %s: %w", op, state, transitionReason(state, op))
}

func transitionReason(state domain.State, op domain.Operation) error {
	switch op {
	case domain.OpRefund, domain.OpRecoverTokens:
		switch state {
		case domain.StatePreSale, domain.StateOpen, domain.StateEndedUnresolved, domain.StateSettled:
			return domain.ErrSaleNotClosed
		}
	}

	switch state {
	case domain.StatePreSale:
		return domain.ErrSaleNotStarted
	case domain.StateOpen:
		return domain.ErrSaleNotEnded
	case domain.StateEndedUnresolved:
		return domain.ErrSaleEnded
	case domain.StateCancelled:
		return domain.ErrSaleCancelled
	case domain.StateClosedAwaitingSettlement:
		// A sale only closes without cancellation when the soft cap was missed.
		if op == domain.OpWithdraw || op == domain.OpClaim {
			return domain.ErrSoftCapNotReached
		}
		return domain.ErrSaleAlreadyClosed
	case domain.StateSettled:
		return domain.ErrFundsAlreadyWithdrawn
	}
	return domain.ErrIllegalTransition
}
