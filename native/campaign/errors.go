package campaign

import "errors"

var (
	// ErrNotFound indicates the campaign id does not exist in state.
	ErrNotFound = errors.New("campaign: not found")
	// ErrInvalidVerifier indicates the verifier address is the zero address.
	ErrInvalidVerifier = errors.New("campaign: verifier address required")
	// ErrInvalidCapacity indicates the participant cap is below one.
	ErrInvalidCapacity = errors.New("campaign: max participants must be at least 1")
	// ErrInsufficientDeposit indicates the deposit is zero or negative.
	ErrInsufficientDeposit = errors.New("campaign: deposit must be positive")
	// ErrInvalidBudget indicates the post-fee budget cannot fund a non-zero
	// per-participant reward.
	ErrInvalidBudget = errors.New("campaign: budget too small for a non-zero reward")
	// ErrCampaignFull indicates the participant cap has been reached.
	ErrCampaignFull = errors.New("campaign: participant capacity reached")
	// ErrAlreadyRegistered indicates the wallet already joined the campaign.
	ErrAlreadyRegistered = errors.New("campaign: wallet already registered")
	// ErrInvalidHandle indicates the social handle is empty after trimming.
	ErrInvalidHandle = errors.New("campaign: handle required")
	// ErrUnauthorized indicates the caller does not hold the verifier
	// capability for the campaign.
	ErrUnauthorized = errors.New("campaign: unauthorized release caller")
	// ErrNotRegistered indicates the wallet never joined the campaign.
	ErrNotRegistered = errors.New("campaign: participant not registered")
	// ErrAlreadyPaid indicates the participant's reward was already released.
	ErrAlreadyPaid = errors.New("campaign: participant already paid")
	// ErrInsufficientFunds indicates an account or the campaign custody
	// cannot cover the requested transfer.
	ErrInsufficientFunds = errors.New("campaign: insufficient funds")
)
