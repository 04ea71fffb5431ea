package mission

import (
	"fmt"
	"math/big"
	"strings"
)

// Mission is the immutable record of one completed or resolved escrow,
// duplicated into both participants' histories. The disputed flag marks which
// terminal path produced it; the outcome of the dispute is deliberately not
// recorded here, because the dispute itself is what reputation tracks.
type Mission struct {
	OfferID     uint64
	Client      [20]byte
	Provider    [20]byte
	Asset       string
	Amount      *big.Int
	Disputed    bool
	CompletedAt int64
}

// Clone returns a deep copy of the mission record.
func (m *Mission) Clone() *Mission {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeMission validates the record and returns a cloned instance.
func SanitizeMission(m *Mission) (*Mission, error) {
	if m == nil {
		return nil, fmt.Errorf("mission: nil mission")
	}
	clone := m.Clone()
	if clone.OfferID == 0 {
		return nil, fmt.Errorf("mission: offer id required")
	}
	if clone.Client == ([20]byte{}) || clone.Provider == ([20]byte{}) {
		return nil, fmt.Errorf("mission: both participants required")
	}
	if clone.Client == clone.Provider {
		return nil, fmt.Errorf("mission: participants must differ")
	}
	if strings.TrimSpace(clone.Asset) == "" {
		return nil, fmt.Errorf("mission: asset required")
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("mission: amount must be non-negative")
	}
	if clone.CompletedAt < 0 {
		return nil, fmt.Errorf("mission: completedAt must be non-negative")
	}
	return clone, nil
}

// Stats carries the incrementally maintained reputation counters for one
// participant.
type Stats struct {
	Missions uint64
	Disputed uint64
}

// ReliabilityBps returns the share of the participant's missions that closed
// without a dispute, in basis points. A participant with no history reports a
// full rate.
func (s Stats) ReliabilityBps() uint32 {
	if s.Missions == 0 {
		return 10_000
	}
	clean := s.Missions - s.Disputed
	return uint32(clean * 10_000 / s.Missions)
}
