package campaign

import (
	"fmt"
	"math/big"
	"strings"
)

// Campaign captures the immutable terms and runtime counters of a single
// reward campaign. The identifier is derived from the owner address and a
// monotonic sequence number at creation time, so ids never repeat. Every
// field except ParticipantCount is fixed once the campaign is created.
type Campaign struct {
	ID                   [20]byte
	Owner                [20]byte
	Verifier             [20]byte
	TotalBudget          *big.Int
	RewardPerParticipant *big.Int
	MaxParticipants      uint64
	ParticipantCount     uint64
	CreatedAt            uint64
}

// Participant records one wallet's membership in a campaign. The zero value
// (Registered false) represents a wallet that never joined.
type Participant struct {
	Wallet     [20]byte
	Handle     string
	Registered bool
	Paid       bool
}

// Clone returns a deep copy of the campaign so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalBudget != nil {
		clone.TotalBudget = new(big.Int).Set(c.TotalBudget)
	} else {
		clone.TotalBudget = big.NewInt(0)
	}
	if c.RewardPerParticipant != nil {
		clone.RewardPerParticipant = new(big.Int).Set(c.RewardPerParticipant)
	} else {
		clone.RewardPerParticipant = big.NewInt(0)
	}
	return &clone
}

// Clone returns a copy of the participant record.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// SanitizeCampaign validates and normalises the supplied campaign, returning
// a cloned instance with non-nil money fields. The function does not mutate
// the original value.
func SanitizeCampaign(c *Campaign) (*Campaign, error) {
	if c == nil {
		return nil, fmt.Errorf("nil campaign")
	}
	clone := c.Clone()
	if clone.TotalBudget.Sign() < 0 {
		return nil, fmt.Errorf("campaign budget must be non-negative")
	}
	if clone.RewardPerParticipant.Sign() < 0 {
		return nil, fmt.Errorf("campaign reward must be non-negative")
	}
	if clone.MaxParticipants == 0 {
		return nil, fmt.Errorf("campaign capacity must be at least 1")
	}
	if clone.ParticipantCount > clone.MaxParticipants {
		return nil, fmt.Errorf("campaign participant count %d exceeds capacity %d", clone.ParticipantCount, clone.MaxParticipants)
	}
	return clone, nil
}

// NormalizeHandle canonicalises a social handle by trimming whitespace and
// ensuring a single leading "@". Normalisation is idempotent: a handle that
// already carries the prefix passes through unchanged.
func NormalizeHandle(handle string) (string, error) {
	trimmed := strings.TrimSpace(handle)
	trimmed = strings.TrimPrefix(trimmed, "@")
	if trimmed == "" {
		return "", ErrInvalidHandle
	}
	return "@" + trimmed, nil
}
