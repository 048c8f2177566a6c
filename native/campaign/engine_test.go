package campaign

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"campchain/core/events"
	"campchain/core/types"
	"campchain/native/fees"
)

type mockState struct {
	campaigns    map[[20]byte]*Campaign
	participants map[string]*Participant
	ownerIndex   map[[20]byte][][20]byte
	globalIndex  [][20]byte
	custody      map[[20]byte]*big.Int
	accounts     map[[20]byte]*types.Account
	vault        [20]byte
	seq          uint64
}

func newMockState() *mockState {
	return &mockState{
		campaigns:    make(map[[20]byte]*Campaign),
		participants: make(map[string]*Participant),
		ownerIndex:   make(map[[20]byte][][20]byte),
		custody:      make(map[[20]byte]*big.Int),
		accounts:     make(map[[20]byte]*types.Account),
		vault:        newTestAddress(0xEE),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func participantKey(id, wallet [20]byte) string {
	return string(id[:]) + string(wallet[:])
}

func (m *mockState) CampaignPut(c *Campaign) error {
	sanitized, err := SanitizeCampaign(c)
	if err != nil {
		return err
	}
	m.campaigns[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) CampaignGet(id [20]byte) (*Campaign, bool) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (m *mockState) ParticipantPut(id [20]byte, p *Participant) error {
	if p == nil {
		return fmt.Errorf("nil participant")
	}
	m.participants[participantKey(id, p.Wallet)] = p.Clone()
	return nil
}

func (m *mockState) ParticipantGet(id [20]byte, wallet [20]byte) (*Participant, bool) {
	p, ok := m.participants[participantKey(id, wallet)]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *mockState) CampaignOwnerIndexAppend(owner [20]byte, id [20]byte) error {
	m.ownerIndex[owner] = append(m.ownerIndex[owner], id)
	return nil
}

func (m *mockState) CampaignIndexAppend(id [20]byte) error {
	m.globalIndex = append(m.globalIndex, id)
	return nil
}

func (m *mockState) CampaignNextSeq() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) CampaignCustodyCredit(id [20]byte, amount *big.Int) error {
	current, ok := m.custody[id]
	if !ok {
		current = big.NewInt(0)
	}
	m.custody[id] = new(big.Int).Add(current, amount)
	return nil
}

func (m *mockState) CampaignCustodyDebit(id [20]byte, amount *big.Int) error {
	current, ok := m.custody[id]
	if !ok || current.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	m.custody[id] = new(big.Int).Sub(current, amount)
	return nil
}

func (m *mockState) CampaignCustodyBalance(id [20]byte) (*big.Int, error) {
	current, ok := m.custody[id]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(current), nil
}

func (m *mockState) CampaignVaultAddress() [20]byte { return m.vault }

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return &types.Account{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}, nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = &types.Account{Nonce: account.Nonce, Balance: new(big.Int).Set(account.Balance)}
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(interface{ Event() *types.Event }); ok {
		r.events = append(r.events, payload.Event())
	}
}

func newTestEngine(state *mockState) (*Engine, *recordingEmitter) {
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetFeePolicy(fees.Policy{FeePercent: 5, Treasury: newTestAddress(0xFE)})
	engine.SetNowFunc(func() uint64 { return 1_700_000_000 })
	return engine, emitter
}

func TestCreateSplitsDeposit(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	owner := newTestAddress(0x01)
	verifier := newTestAddress(0x02)
	state.fund(owner, 100)

	c, err := engine.Create(owner, verifier, big.NewInt(100), 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.TotalBudget.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("expected budget 95, got %s", c.TotalBudget)
	}
	if c.RewardPerParticipant.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("expected reward 9, got %s", c.RewardPerParticipant)
	}
	if got := state.balance(engine.FeePolicy().Treasury); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected treasury balance 5, got %s", got)
	}
	if got := state.balance(owner); got.Sign() != 0 {
		t.Fatalf("expected owner fully debited, got %s", got)
	}
	if got := state.balance(state.vault); got.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("expected vault balance 95, got %s", got)
	}
	custody, err := state.CampaignCustodyBalance(c.ID)
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if custody.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("expected custody 95, got %s", custody)
	}
	total := new(big.Int).Add(c.TotalBudget, big.NewInt(5))
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("fee + budget must equal deposit, got %s", total)
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != EventTypeCampaignCreated {
		t.Fatalf("expected a single created event, got %+v", emitter.events)
	}
	if got := emitter.events[0].Attributes["platformFee"]; got != "5" {
		t.Fatalf("expected platformFee attribute 5, got %q", got)
	}
	if len(state.ownerIndex[owner]) != 1 || state.ownerIndex[owner][0] != c.ID {
		t.Fatalf("owner index missing campaign id")
	}
	if len(state.globalIndex) != 1 || state.globalIndex[0] != c.ID {
		t.Fatalf("global index missing campaign id")
	}
}

func TestCreateValidation(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	owner := newTestAddress(0x01)
	verifier := newTestAddress(0x02)
	state.fund(owner, 1_000)

	if _, err := engine.Create(owner, verifier, big.NewInt(100), 0); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := engine.Create(owner, [20]byte{}, big.NewInt(100), 5); !errors.Is(err, ErrInvalidVerifier) {
		t.Fatalf("expected ErrInvalidVerifier, got %v", err)
	}
	if _, err := engine.Create(owner, verifier, big.NewInt(0), 5); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
	// 10 units at 5% leaves 10 net, split over 20 participants floors to 0.
	if _, err := engine.Create(owner, verifier, big.NewInt(10), 20); !errors.Is(err, ErrInvalidBudget) {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestCreateRequiresFunds(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	owner := newTestAddress(0x01)
	// 50 covers the 5-unit fee but not the 95-unit net budget; the whole
	// create must be rejected before either leg moves.
	state.fund(owner, 50)
	if _, err := engine.Create(owner, newTestAddress(0x02), big.NewInt(100), 5); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := state.balance(owner); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("failed create must not debit owner, balance %s", got)
	}
	if got := state.balance(engine.FeePolicy().Treasury); got.Sign() != 0 {
		t.Fatalf("failed create must not credit treasury, balance %s", got)
	}
	if got := state.balance(state.vault); got.Sign() != 0 {
		t.Fatalf("failed create must not credit vault, balance %s", got)
	}
	if len(state.campaigns) != 0 || len(state.globalIndex) != 0 || len(state.ownerIndex[owner]) != 0 {
		t.Fatal("failed create must not store or index a campaign")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("failed create must not emit events, got %+v", emitter.events)
	}
}

func TestCreateDerivesUniqueIDs(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	owner := newTestAddress(0x01)
	state.fund(owner, 10_000)
	seen := make(map[[20]byte]bool)
	for i := 0; i < 5; i++ {
		c, err := engine.Create(owner, newTestAddress(0x02), big.NewInt(100), 10)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[c.ID] {
			t.Fatalf("duplicate campaign id at creation %d", i)
		}
		seen[c.ID] = true
	}
	if len(state.ownerIndex[owner]) != 5 {
		t.Fatalf("expected 5 owner index entries, got %d", len(state.ownerIndex[owner]))
	}
	if len(state.globalIndex) != 5 {
		t.Fatalf("expected 5 global index entries, got %d", len(state.globalIndex))
	}
}

func createFundedCampaign(t *testing.T, engine *Engine, state *mockState) *Campaign {
	t.Helper()
	owner := newTestAddress(0x01)
	state.fund(owner, 100)
	c, err := engine.Create(owner, newTestAddress(0x02), big.NewInt(100), 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestJoinNormalizesHandle(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)

	p, err := engine.Join(c.ID, newTestAddress(0x10), "influencer")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Handle != "@influencer" {
		t.Fatalf("expected @-prefixed handle, got %q", p.Handle)
	}
	p2, err := engine.Join(c.ID, newTestAddress(0x11), "@already")
	if err != nil {
		t.Fatalf("join with prefix: %v", err)
	}
	if p2.Handle != "@already" {
		t.Fatalf("normalisation must be idempotent, got %q", p2.Handle)
	}
	updated, err := engine.Get(c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.ParticipantCount != 2 {
		t.Fatalf("expected participant count 2, got %d", updated.ParticipantCount)
	}
	joined := emitter.events[len(emitter.events)-1]
	if joined.Type != EventTypeCampaignJoined || joined.Attributes["handle"] != "@already" {
		t.Fatalf("unexpected joined event %+v", joined)
	}
}

func TestJoinRejectsEmptyHandle(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	for _, handle := range []string{"", "   ", "@", " @ "} {
		if _, err := engine.Join(c.ID, newTestAddress(0x10), handle); !errors.Is(err, ErrInvalidHandle) {
			t.Fatalf("handle %q: expected ErrInvalidHandle, got %v", handle, err)
		}
	}
}

func TestJoinExactlyOnce(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	wallet := newTestAddress(0x10)
	if _, err := engine.Join(c.ID, wallet, "first"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := engine.Join(c.ID, wallet, "second"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	updated, _ := engine.Get(c.ID)
	if updated.ParticipantCount != 1 {
		t.Fatalf("count must not advance on rejected join, got %d", updated.ParticipantCount)
	}
}

func TestJoinCapacity(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	owner := newTestAddress(0x01)
	state.fund(owner, 100)
	c, err := engine.Create(owner, newTestAddress(0x02), big.NewInt(100), 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Join(c.ID, newTestAddress(0x10), "one"); err != nil {
		t.Fatalf("join one: %v", err)
	}
	if _, err := engine.Join(c.ID, newTestAddress(0x11), "two"); err != nil {
		t.Fatalf("join two: %v", err)
	}
	if _, err := engine.Join(c.ID, newTestAddress(0x12), "three"); !errors.Is(err, ErrCampaignFull) {
		t.Fatalf("expected ErrCampaignFull, got %v", err)
	}
}

func TestJoinUnknownCampaign(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	if _, err := engine.Join(newTestAddress(0x42), newTestAddress(0x10), "handle"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReleaseRewardHappyPath(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	wallet := newTestAddress(0x10)
	if _, err := engine.Join(c.ID, wallet, "creator"); err != nil {
		t.Fatalf("join: %v", err)
	}
	verifier := newTestAddress(0x02)
	if err := engine.ReleaseReward(c.ID, wallet, verifier); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := state.balance(wallet); got.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("expected participant balance 9, got %s", got)
	}
	custody, _ := state.CampaignCustodyBalance(c.ID)
	if custody.Cmp(big.NewInt(86)) != 0 {
		t.Fatalf("expected custody 86 after payout, got %s", custody)
	}
	p, err := engine.Participant(c.ID, wallet)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if !p.Paid {
		t.Fatal("participant must be marked paid")
	}
	released := emitter.events[len(emitter.events)-1]
	if released.Type != EventTypeCampaignReleased || released.Attributes["amount"] != "9" {
		t.Fatalf("unexpected released event %+v", released)
	}
}

func TestReleaseRewardAuthorization(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	wallet := newTestAddress(0x10)
	if _, err := engine.Join(c.ID, wallet, "creator"); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Neither the owner nor the participant holds the release capability.
	if err := engine.ReleaseReward(c.ID, wallet, c.Owner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for owner, got %v", err)
	}
	if err := engine.ReleaseReward(c.ID, wallet, wallet); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for participant, got %v", err)
	}
}

func TestReleaseRewardExactlyOnce(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	wallet := newTestAddress(0x10)
	verifier := newTestAddress(0x02)
	if _, err := engine.Join(c.ID, wallet, "creator"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := engine.ReleaseReward(c.ID, wallet, verifier); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := engine.ReleaseReward(c.ID, wallet, verifier); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	if got := state.balance(wallet); got.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("double release must not move funds, balance %s", got)
	}
}

func TestReleaseRewardRequiresRegistration(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	if err := engine.ReleaseReward(c.ID, newTestAddress(0x10), newTestAddress(0x02)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRemainderStaysEscrowed(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	verifier := newTestAddress(0x02)
	for i := 0; i < int(c.MaxParticipants); i++ {
		wallet := newTestAddress(byte(0x30 + i))
		if _, err := engine.Join(c.ID, wallet, fmt.Sprintf("member%d", i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if err := engine.ReleaseReward(c.ID, wallet, verifier); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	// 95 budget, 10 participants at 9 each leaves 5 escrowed forever.
	custody, _ := state.CampaignCustodyBalance(c.ID)
	if custody.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected remainder 5 in custody, got %s", custody)
	}
	remaining, err := engine.RemainingBudget(c.ID)
	if err != nil {
		t.Fatalf("remaining budget: %v", err)
	}
	if remaining.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected remaining budget 5, got %s", remaining)
	}
}

func TestParticipantZeroValueForUnknownWallet(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	c := createFundedCampaign(t, engine, state)
	p, err := engine.Participant(c.ID, newTestAddress(0x55))
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if p.Registered || p.Paid || p.Handle != "" {
		t.Fatalf("expected zero-value participant, got %+v", p)
	}
}
