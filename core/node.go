package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"campchain/core/events"
	"campchain/core/state"
	"campchain/core/types"
	"campchain/native/campaign"
	"campchain/native/fees"
	"campchain/storage"
)

// eventBufferSize bounds the in-memory event ring served over RPC.
const eventBufferSize = 256

// GenesisAlloc credits an address with an initial balance on first start.
type GenesisAlloc struct {
	Address [20]byte
	Balance *big.Int
}

// Node owns the state database and serialises every mutation behind a single
// mutex. The resulting total order over operations subsumes the per-campaign
// ordering the engine relies on: two joins racing for the last slot commit
// one after the other, and the loser observes the updated count.
type Node struct {
	db        storage.Database
	feePolicy fees.Policy
	logger    *slog.Logger

	stateMu sync.Mutex

	eventMu    sync.Mutex
	eventLog   []*types.Event
	eventsSeen uint64
}

// NewNode creates a node over the database and applies genesis allocations
// exactly once.
func NewNode(db storage.Database, feePolicy fees.Policy, alloc []GenesisAlloc, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if err := feePolicy.Valid(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:        db,
		feePolicy: feePolicy,
		logger:    logger,
	}
	if err := n.applyGenesis(alloc); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) applyGenesis(alloc []GenesisAlloc) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	applied, err := manager.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, entry := range alloc {
		if entry.Balance == nil || entry.Balance.Sign() < 0 {
			return fmt.Errorf("core: genesis balance must be non-negative")
		}
		account, err := manager.GetAccount(entry.Address[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, entry.Balance)
		if err := manager.PutAccount(entry.Address[:], account); err != nil {
			return err
		}
	}
	if err := manager.MarkGenesisApplied(); err != nil {
		return err
	}
	n.logger.Info("genesis allocations applied", "accounts", len(alloc))
	return nil
}

// nodeEventEmitter forwards engine events into the node's bounded ring.
type nodeEventEmitter struct {
	node *Node
}

func (e nodeEventEmitter) Emit(evt events.Event) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	e.node.appendEvent(payload.Event())
}

func (n *Node) appendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	n.eventLog = append(n.eventLog, evt)
	n.eventsSeen++
	if len(n.eventLog) > eventBufferSize {
		n.eventLog = n.eventLog[len(n.eventLog)-eventBufferSize:]
	}
}

// Events returns the buffered events starting at the given global offset
// together with the offset of the first returned entry.
func (n *Node) Events(offset uint64) ([]*types.Event, uint64) {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	first := n.eventsSeen - uint64(len(n.eventLog))
	if offset < first {
		offset = first
	}
	if offset >= n.eventsSeen {
		return nil, n.eventsSeen
	}
	out := make([]*types.Event, 0, n.eventsSeen-offset)
	out = append(out, n.eventLog[offset-first:]...)
	return out, offset
}

func (n *Node) engine(manager *state.Manager) *campaign.Engine {
	eng := campaign.NewEngine()
	eng.SetState(manager)
	eng.SetFeePolicy(n.feePolicy)
	eng.SetEmitter(nodeEventEmitter{node: n})
	return eng
}

// CampaignCreate mints a new campaign funded by the owner's deposit.
func (n *Node) CampaignCreate(owner, verifier [20]byte, deposit *big.Int, maxParticipants uint64) (*campaign.Campaign, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	c, err := n.engine(manager).Create(owner, verifier, deposit, maxParticipants)
	if err != nil {
		return nil, err
	}
	n.logger.Info("campaign created",
		"id", fmt.Sprintf("%x", c.ID),
		"budget", c.TotalBudget.String(),
		"maxParticipants", c.MaxParticipants)
	return c, nil
}

// CampaignJoin registers a wallet for the campaign.
func (n *Node) CampaignJoin(id [20]byte, wallet [20]byte, handle string) (*campaign.Participant, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	return n.engine(manager).Join(id, wallet, handle)
}

// CampaignRelease pays the participant's reward when invoked by the
// campaign verifier.
func (n *Node) CampaignRelease(id [20]byte, wallet [20]byte, caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	return n.engine(manager).ReleaseReward(id, wallet, caller)
}

// CampaignGet returns the stored campaign.
func (n *Node) CampaignGet(id [20]byte) (*campaign.Campaign, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	return n.engine(manager).Get(id)
}

// CampaignInfo is the fixed summary tuple reported for a campaign. Budget is
// the live amount still held in custody, not the creation-time budget.
type CampaignInfo struct {
	Owner                [20]byte
	Budget               *big.Int
	ParticipantCount     uint64
	MaxParticipants      uint64
	RewardPerParticipant *big.Int
}

// CampaignInfoGet returns the campaign summary tuple.
func (n *Node) CampaignInfoGet(id [20]byte) (*CampaignInfo, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	eng := n.engine(manager)
	c, err := eng.Get(id)
	if err != nil {
		return nil, err
	}
	remaining, err := eng.RemainingBudget(id)
	if err != nil {
		return nil, err
	}
	return &CampaignInfo{
		Owner:                c.Owner,
		Budget:               remaining,
		ParticipantCount:     c.ParticipantCount,
		MaxParticipants:      c.MaxParticipants,
		RewardPerParticipant: c.RewardPerParticipant,
	}, nil
}

// CampaignParticipant returns the participant record for the wallet. Wallets
// that never joined yield the zero-value record.
func (n *Node) CampaignParticipant(id [20]byte, wallet [20]byte) (*campaign.Participant, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	return n.engine(manager).Participant(id, wallet)
}

// CampaignsByOwner lists the ids of campaigns created by the owner in
// creation order.
func (n *Node) CampaignsByOwner(owner [20]byte) ([][20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return state.NewManager(n.db).CampaignOwnerIndex(owner)
}

// CampaignCount reports the total number of campaigns ever created.
func (n *Node) CampaignCount() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	ids, err := state.NewManager(n.db).CampaignIndex()
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// CampaignAt returns the id of the i-th campaign in creation order.
func (n *Node) CampaignAt(index uint64) ([20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	ids, err := state.NewManager(n.db).CampaignIndex()
	if err != nil {
		return [20]byte{}, err
	}
	if index >= uint64(len(ids)) {
		return [20]byte{}, fmt.Errorf("core: campaign index %d out of range", index)
	}
	return ids[index], nil
}

// FeePercent reports the platform fee percentage applied to deposits.
func (n *Node) FeePercent() uint64 {
	return n.feePolicy.FeePercent
}

// GetAccount returns the account record for an address.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return state.NewManager(n.db).GetAccount(addr[:])
}
