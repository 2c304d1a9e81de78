// Package reserve computes the minimum balance a participant must keep after
// paying for a new participation record.
package reserve

import (
	"github.com/transfa/ido-service/internal/checked"
)

// ParticipationRecordBytes is the stored size of one participation record:
// a header, the participant key, three amounts and the join timestamp.
const ParticipationRecordBytes = 8 + 32 + 3*8 + 8

// Schedule prices storage the way a rent-exempt ledger does: every stored byte
// plus a fixed per-record overhead is charged ByteRate per year for ExemptionYears.
type Schedule struct {
	OverheadBytes  uint64
	ByteRate       uint64
	ExemptionYears uint64
}

// DefaultSchedule is used when no reserve schedule is configured.
var DefaultSchedule = Schedule{
	OverheadBytes:  128,
	ByteRate:       3480,
	ExemptionYears: 2,
}

// MinimumBalance returns the balance that must remain to hold a record of size bytes.
func (s Schedule) MinimumBalance(size uint64) (uint64, error) {
	total, err := checked.Add(s.OverheadBytes, size, "reserve size")
	if err != nil {
		return 0, err
	}
	perYear, err := checked.Mul(total, s.ByteRate, "reserve rate")
	if err != nil {
		return 0, err
	}
	return checked.Mul(perYear, s.ExemptionYears, "reserve exemption")
}

// ForParticipation returns the reserve required for a new participation record.
func (s Schedule) ForParticipation() (uint64, error) {
	return s.MinimumBalance(ParticipationRecordBytes)
}
