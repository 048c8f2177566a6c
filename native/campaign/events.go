package campaign

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"campchain/core/types"
)

const (
	EventTypeCampaignCreated  = "campaign.created"
	EventTypeCampaignJoined   = "campaign.joined"
	EventTypeCampaignReleased = "campaign.released"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// campaign. The deposit is the gross amount paid by the owner before the
// platform fee was deducted.
func NewCreatedEvent(c *Campaign, deposit, fee *big.Int) *types.Event {
	attrs := make(map[string]string)
	if c == nil {
		return &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}
	}
	sanitized, err := SanitizeCampaign(c)
	if err != nil {
		return &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["owner"] = hex.EncodeToString(sanitized.Owner[:])
	attrs["totalBudget"] = bigString(deposit)
	attrs["platformFee"] = bigString(fee)
	attrs["campaignBudget"] = sanitized.TotalBudget.String()
	attrs["reward"] = sanitized.RewardPerParticipant.String()
	attrs["maxParticipants"] = strconv.FormatUint(sanitized.MaxParticipants, 10)
	return &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}
}

// NewJoinedEvent returns the canonical event payload emitted when a wallet
// registers for a campaign.
func NewJoinedEvent(c *Campaign, p *Participant) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = hex.EncodeToString(c.ID[:])
		attrs["participantCount"] = strconv.FormatUint(c.ParticipantCount, 10)
	}
	if p != nil {
		attrs["wallet"] = hex.EncodeToString(p.Wallet[:])
		attrs["handle"] = p.Handle
	}
	return &types.Event{Type: EventTypeCampaignJoined, Attributes: attrs}
}

// NewReleasedEvent returns the canonical event payload emitted when a reward
// is paid out to a participant.
func NewReleasedEvent(c *Campaign, p *Participant, amount *big.Int) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = hex.EncodeToString(c.ID[:])
	}
	if p != nil {
		attrs["wallet"] = hex.EncodeToString(p.Wallet[:])
		attrs["handle"] = p.Handle
	}
	attrs["amount"] = bigString(amount)
	return &types.Event{Type: EventTypeCampaignReleased, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
