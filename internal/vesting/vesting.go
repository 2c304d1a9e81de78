// Package vesting computes how many tokens a participant can claim under a
// cliff-plus-linear unlock schedule.
package vesting

import (
	"github.com/transfa/ido-service/internal/checked"
	"github.com/transfa/ido-service/internal/domain"
)

// Schedule describes the unlock curve of a campaign.
// UnlockPct of the entitlement unlocks at Cliff; the rest vests linearly until VestingEnd.
type Schedule struct {
	Cliff      int64
	VestingEnd int64
	UnlockPct  uint8
}

// ScheduleOf extracts the vesting schedule from a campaign.
func ScheduleOf(c domain.Campaign) Schedule {
	return Schedule{
		Cliff:      c.Cliff,
		VestingEnd: c.VestingEndTime,
		UnlockPct:  c.AvailableTokensAfterCliffPct,
	}
}

// Validate checks the schedule parameters Unlocked relies on.
func (s Schedule) Validate() error {
	if s.VestingEnd <= s.Cliff {
		return domain.ErrInvalidVestingPeriod
	}
	if s.UnlockPct > 100 {
		return domain.ErrInvalidUnlockPercent
	}
	return nil
}

// Unlocked returns the cumulative amount of entitlement unlocked at now.
func (s Schedule) Unlocked(entitlement uint64, now int64) (uint64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if now < s.Cliff {
		return 0, nil
	}
	if now >= s.VestingEnd {
		return entitlement, nil
	}

	cliffUnlocked, err := checked.MulDiv(entitlement, uint64(s.UnlockPct), 100, "cliff unlock")
	if err != nil {
		return 0, err
	}
	if now == s.Cliff {
		return cliffUnlocked, nil
	}

	remaining := entitlement - cliffUnlocked
	elapsed := uint64(now - s.Cliff)
	duration := uint64(s.VestingEnd - s.Cliff)
	linear, err := checked.MulDiv(remaining, elapsed, duration, "linear unlock")
	if err != nil {
		return 0, err
	}

	unlocked, err := checked.Add(cliffUnlocked, linear, "unlocked total")
	if err != nil {
		return 0, err
	}
	if unlocked > entitlement {
		unlocked = entitlement
	}
	return unlocked, nil
}

// Claimable returns how much of entitlement can still be claimed at now given
// what has already been claimed. Zero is a valid result.
func Claimable(s Schedule, entitlement, claimed uint64, now int64) (uint64, error) {
	unlocked, err := s.Unlocked(entitlement, now)
	if err != nil {
		return 0, err
	}
	return checked.SaturatingSub(unlocked, claimed), nil
}
