package vesting

import (
	"errors"
	"math"
	"testing"

	"github.com/transfa/ido-service/internal/domain"
)

func TestClaimable(t *testing.T) {
	schedule := Schedule{Cliff: 100, VestingEnd: 200, UnlockPct: 20}

	cases := []struct {
		name     string
		claimed  uint64
		now      int64
		expected uint64
	}{
		{name: "before cliff", now: 99, expected: 0},
		{name: "at cliff", now: 100, expected: 200},
		{name: "midway", now: 150, expected: 600},
		{name: "one second before end", now: 199, expected: 992},
		{name: "at vesting end", now: 200, expected: 1000},
		{name: "after vesting end", now: 250, expected: 1000},
		{name: "midway partially claimed", claimed: 200, now: 150, expected: 400},
		{name: "claimed more than unlocked", claimed: 700, now: 150, expected: 0},
		{name: "fully claimed", claimed: 1000, now: 250, expected: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Claimable(schedule, 1000, tc.claimed, tc.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Fatalf("expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestClaimable_ZeroAndFullUnlockPercent(t *testing.T) {
	zero := Schedule{Cliff: 10, VestingEnd: 20, UnlockPct: 0}
	if got, _ := Claimable(zero, 1000, 0, 10); got != 0 {
		t.Fatalf("expected nothing unlocked at cliff with 0%%, got %d", got)
	}
	if got, _ := Claimable(zero, 1000, 0, 15); got != 500 {
		t.Fatalf("expected 500 halfway with 0%% cliff unlock, got %d", got)
	}

	full := Schedule{Cliff: 10, VestingEnd: 20, UnlockPct: 100}
	if got, _ := Claimable(full, 1000, 0, 10); got != 1000 {
		t.Fatalf("expected everything unlocked at cliff with 100%%, got %d", got)
	}
}

func TestClaimable_LargeEntitlementDoesNotOverflow(t *testing.T) {
	schedule := Schedule{Cliff: 0, VestingEnd: 1 << 40, UnlockPct: 99}
	got, err := Claimable(schedule, math.MaxUint64, 0, 1<<39)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if floor := uint64(math.MaxUint64) / 100 * 99; got < floor {
		t.Fatalf("expected at least %d, got %d", floor, got)
	}
}

func TestClaimable_RejectsInvalidSchedule(t *testing.T) {
	_, err := Claimable(Schedule{Cliff: 200, VestingEnd: 200, UnlockPct: 20}, 1000, 0, 300)
	if !errors.Is(err, domain.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule error, got %v", err)
	}

	_, err = Claimable(Schedule{Cliff: 100, VestingEnd: 200, UnlockPct: 101}, 1000, 0, 150)
	if !errors.Is(err, domain.ErrInvalidEconomicParameter) {
		t.Fatalf("expected invalid economic parameter error, got %v", err)
	}
}
