package campaign

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"campchain/core/events"
	"campchain/core/types"
	"campchain/native/fees"
)

var (
	errNilState = errors.New("campaign engine: state not configured")
)

type engineState interface {
	CampaignPut(*Campaign) error
	CampaignGet(id [20]byte) (*Campaign, bool)
	ParticipantPut(id [20]byte, p *Participant) error
	ParticipantGet(id [20]byte, wallet [20]byte) (*Participant, bool)
	CampaignOwnerIndexAppend(owner [20]byte, id [20]byte) error
	CampaignIndexAppend(id [20]byte) error
	CampaignNextSeq() (uint64, error)
	CampaignCustodyCredit(id [20]byte, amount *big.Int) error
	CampaignCustodyDebit(id [20]byte, amount *big.Int) error
	CampaignCustodyBalance(id [20]byte) (*big.Int, error)
	CampaignVaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type campaignEvent struct {
	evt *types.Event
}

func (e campaignEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e campaignEvent) Event() *types.Event { return e.evt }

// Engine wires the campaign business logic with external state and event
// emitters. Every operation loads the affected records, validates the
// transition, persists the result and emits a canonical event.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	feePolicy fees.Policy
	nowFn     func() uint64
}

// NewEngine creates a campaign engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeePolicy configures the platform fee applied to campaign deposits.
func (e *Engine) SetFeePolicy(policy fees.Policy) { e.feePolicy = policy }

// FeePolicy returns the configured platform fee policy.
func (e *Engine) FeePolicy() fees.Policy { return e.feePolicy }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(campaignEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadCampaign(id [20]byte) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok := e.state.CampaignGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (e *Engine) storeCampaign(c *Campaign) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.CampaignPut(c)
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("campaign: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureDefaults()
	toAcc = toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// deriveID computes the campaign identifier from the owner address and the
// creation sequence number. Sequence numbers never repeat, so neither do ids.
func deriveID(owner [20]byte, seq uint64) [20]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	hash := ethcrypto.Keccak256(owner[:], seqBytes[:])
	var id [20]byte
	copy(id[:], hash[len(hash)-20:])
	return id
}

// Create validates the campaign terms, collects the deposit from the owner,
// routes the platform fee to the treasury and escrows the remaining budget in
// campaign custody. The per-participant reward is fixed at creation as the
// floored division of the budget by the participant cap; any integer
// remainder stays escrowed and is never paid out.
func (e *Engine) Create(owner, verifier [20]byte, deposit *big.Int, maxParticipants uint64) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if maxParticipants == 0 {
		return nil, ErrInvalidCapacity
	}
	if verifier == ([20]byte{}) {
		return nil, ErrInvalidVerifier
	}
	amount := cloneBigInt(deposit)
	if amount.Sign() <= 0 {
		return nil, ErrInsufficientDeposit
	}
	if err := e.feePolicy.Valid(); err != nil {
		return nil, err
	}
	split, err := e.feePolicy.Apply(amount)
	if err != nil {
		return nil, err
	}
	reward := new(big.Int).Div(split.Net, new(big.Int).SetUint64(maxParticipants))
	if reward.Sign() == 0 {
		return nil, ErrInvalidBudget
	}

	seq, err := e.state.CampaignNextSeq()
	if err != nil {
		return nil, err
	}
	id := deriveID(owner, seq)
	if _, exists := e.state.CampaignGet(id); exists {
		return nil, fmt.Errorf("campaign: identifier collision for sequence %d", seq)
	}

	// The owner must cover the whole deposit before anything moves, so a
	// rejected create never leaves the fee with the treasury.
	ownerAcc, err := e.state.GetAccount(owner[:])
	if err != nil {
		return nil, err
	}
	if ownerAcc.EnsureDefaults().Balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientFunds
	}

	vault := e.state.CampaignVaultAddress()
	if split.Fee.Sign() > 0 {
		if err := e.transfer(owner, e.feePolicy.Treasury, split.Fee); err != nil {
			return nil, err
		}
	}
	if err := e.transfer(owner, vault, split.Net); err != nil {
		return nil, err
	}
	if err := e.state.CampaignCustodyCredit(id, split.Net); err != nil {
		return nil, err
	}

	c := &Campaign{
		ID:                   id,
		Owner:                owner,
		Verifier:             verifier,
		TotalBudget:          split.Net,
		RewardPerParticipant: reward,
		MaxParticipants:      maxParticipants,
		ParticipantCount:     0,
		CreatedAt:            e.now(),
	}
	if err := e.storeCampaign(c); err != nil {
		return nil, err
	}
	if err := e.state.CampaignOwnerIndexAppend(owner, id); err != nil {
		return nil, err
	}
	if err := e.state.CampaignIndexAppend(id); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(c, amount, split.Fee))
	return c.Clone(), nil
}

// Join registers a wallet for the campaign under the supplied social handle.
// Capacity and double-join checks happen against the loaded record, so under
// the node's serialisation the cap can never be exceeded.
func (e *Engine) Join(id [20]byte, wallet [20]byte, handle string) (*Participant, error) {
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if c.ParticipantCount >= c.MaxParticipants {
		return nil, ErrCampaignFull
	}
	if existing, ok := e.state.ParticipantGet(id, wallet); ok && existing.Registered {
		return nil, ErrAlreadyRegistered
	}
	normalized, err := NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	p := &Participant{
		Wallet:     wallet,
		Handle:     normalized,
		Registered: true,
		Paid:       false,
	}
	if err := e.state.ParticipantPut(id, p); err != nil {
		return nil, err
	}
	c.ParticipantCount++
	if err := e.storeCampaign(c); err != nil {
		return nil, err
	}
	e.emit(NewJoinedEvent(c, p))
	return p.Clone(), nil
}

// ReleaseReward pays the fixed per-participant reward to a registered,
// unpaid participant. Only the campaign verifier may invoke the transition,
// and a participant can be paid at most once.
func (e *Engine) ReleaseReward(id [20]byte, wallet [20]byte, caller [20]byte) error {
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if caller != c.Verifier {
		return ErrUnauthorized
	}
	p, ok := e.state.ParticipantGet(id, wallet)
	if !ok || !p.Registered {
		return ErrNotRegistered
	}
	if p.Paid {
		return ErrAlreadyPaid
	}
	reward := cloneBigInt(c.RewardPerParticipant)
	custody, err := e.state.CampaignCustodyBalance(id)
	if err != nil {
		return err
	}
	if custody == nil || custody.Cmp(reward) < 0 {
		return ErrInsufficientFunds
	}
	vault := e.state.CampaignVaultAddress()
	if err := e.transfer(vault, wallet, reward); err != nil {
		return err
	}
	if err := e.state.CampaignCustodyDebit(id, reward); err != nil {
		return err
	}
	p.Paid = true
	if err := e.state.ParticipantPut(id, p); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(c, p, reward))
	return nil
}

// Get returns a copy of the stored campaign.
func (e *Engine) Get(id [20]byte) (*Campaign, error) {
	return e.loadCampaign(id)
}

// RemainingBudget reports the live custody balance still escrowed for the
// campaign.
func (e *Engine) RemainingBudget(id [20]byte) (*big.Int, error) {
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	custody, err := e.state.CampaignCustodyBalance(id)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(custody), nil
}

// Participant returns the participant record for the wallet. A wallet that
// never joined yields the zero-value record rather than an error.
func (e *Engine) Participant(id [20]byte, wallet [20]byte) (*Participant, error) {
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	p, ok := e.state.ParticipantGet(id, wallet)
	if !ok {
		return &Participant{Wallet: wallet}, nil
	}
	return p.Clone(), nil
}
