package state

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"campchain/core/types"
	"campchain/native/campaign"
	"campchain/storage"
)

// Manager provides the read/write surface over the key-value store used by
// the campaign engine and the node. Keys are hashed with keccak256 and values
// are RLP encoded.
type Manager struct {
	db     storage.Database
	logger *slog.Logger
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, logger: slog.Default()}
}

var (
	accountPrefix     = []byte("account:")
	campaignPrefix    = []byte("campaign:")
	participantPrefix = []byte("participant:")
	ownerIndexPrefix  = []byte("campaigns:owner:")
	custodyPrefix     = []byte("custody:")
	globalIndexKey    = []byte("campaigns:all")
	campaignSeqKey    = []byte("campaigns:seq")
	genesisFlagKey    = []byte("genesis:applied")
	vaultSeed         = []byte("campaign-vault")
)

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return buf
}

// get reads the raw value for a hashed key, normalising a miss to nil data.
func (m *Manager) get(key []byte) ([]byte, error) {
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) put(key []byte, value []byte) error {
	return m.db.Put(kvKey(key), value)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep the
// index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(key)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.put(key, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// --- Accounts ---

// GetAccount loads the account for the address. Unknown addresses yield a
// zero-balance account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	account := &types.Account{Balance: big.NewInt(0)}
	ok, err := m.KVGet(prefixedKey(accountPrefix, addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return account.EnsureDefaults(), nil
}

// PutAccount persists the account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	return m.KVPut(prefixedKey(accountPrefix, addr), account.EnsureDefaults())
}

// --- Campaign records ---

// CampaignPut persists a sanitised copy of the campaign.
func (m *Manager) CampaignPut(c *campaign.Campaign) error {
	sanitized, err := campaign.SanitizeCampaign(c)
	if err != nil {
		return err
	}
	return m.KVPut(prefixedKey(campaignPrefix, sanitized.ID[:]), sanitized)
}

// CampaignGet loads the campaign for the id. The boolean reports existence.
// Read faults are logged before being reported as a miss.
func (m *Manager) CampaignGet(id [20]byte) (*campaign.Campaign, bool) {
	c := new(campaign.Campaign)
	ok, err := m.KVGet(prefixedKey(campaignPrefix, id[:]), c)
	if err != nil {
		m.logger.Error("state: campaign read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return c, true
}

// ParticipantPut persists the participant record for the campaign.
func (m *Manager) ParticipantPut(id [20]byte, p *campaign.Participant) error {
	if p == nil {
		return fmt.Errorf("state: participant must not be nil")
	}
	return m.KVPut(prefixedKey(participantPrefix, id[:], p.Wallet[:]), p)
}

// ParticipantGet loads the participant record for the wallet within the
// campaign. The boolean reports existence.
func (m *Manager) ParticipantGet(id [20]byte, wallet [20]byte) (*campaign.Participant, bool) {
	p := new(campaign.Participant)
	ok, err := m.KVGet(prefixedKey(participantPrefix, id[:], wallet[:]), p)
	if err != nil {
		m.logger.Error("state: participant read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return p, true
}

// --- Indexes ---

// CampaignOwnerIndexAppend records the campaign id in the owner's
// append-only index.
func (m *Manager) CampaignOwnerIndexAppend(owner [20]byte, id [20]byte) error {
	return m.KVAppend(prefixedKey(ownerIndexPrefix, owner[:]), id[:])
}

// CampaignOwnerIndex returns the ids of campaigns created by the owner in
// creation order.
func (m *Manager) CampaignOwnerIndex(owner [20]byte) ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(prefixedKey(ownerIndexPrefix, owner[:]), &raw); err != nil {
		return nil, err
	}
	return decodeIDList(raw)
}

// CampaignIndexAppend records the campaign id in the global append-only
// index. The index order is the enumeration order.
func (m *Manager) CampaignIndexAppend(id [20]byte) error {
	return m.KVAppend(globalIndexKey, id[:])
}

// CampaignIndex returns every campaign id in creation order.
func (m *Manager) CampaignIndex() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(globalIndexKey, &raw); err != nil {
		return nil, err
	}
	return decodeIDList(raw)
}

func decodeIDList(raw [][]byte) ([][20]byte, error) {
	ids := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("state: malformed campaign id of length %d", len(entry))
		}
		var id [20]byte
		copy(id[:], entry)
		ids = append(ids, id)
	}
	return ids, nil
}

// --- Sequence, custody, vault ---

// CampaignNextSeq increments and returns the campaign creation sequence
// number. The first campaign receives sequence 1.
func (m *Manager) CampaignNextSeq() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(campaignSeqKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := m.KVPut(campaignSeqKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// CampaignCustodyCredit adds the amount to the campaign custody ledger.
func (m *Manager) CampaignCustodyCredit(id [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: custody credit must be non-negative")
	}
	current, err := m.CampaignCustodyBalance(id)
	if err != nil {
		return err
	}
	return m.KVPut(prefixedKey(custodyPrefix, id[:]), new(big.Int).Add(current, amount))
}

// CampaignCustodyDebit subtracts the amount from the campaign custody
// ledger, failing when the entry cannot cover it.
func (m *Manager) CampaignCustodyDebit(id [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: custody debit must be non-negative")
	}
	current, err := m.CampaignCustodyBalance(id)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return campaign.ErrInsufficientFunds
	}
	return m.KVPut(prefixedKey(custodyPrefix, id[:]), new(big.Int).Sub(current, amount))
}

// CampaignCustodyBalance reports the amount still escrowed for the campaign.
func (m *Manager) CampaignCustodyBalance(id [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(prefixedKey(custodyPrefix, id[:]), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// CampaignVaultAddress returns the module account holding aggregate campaign
// custody. The address is derived deterministically from a fixed seed.
func (m *Manager) CampaignVaultAddress() [20]byte {
	hash := ethcrypto.Keccak256(vaultSeed)
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

// --- Genesis bookkeeping ---

// GenesisApplied reports whether initial allocations have been written.
func (m *Manager) GenesisApplied() (bool, error) {
	var applied bool
	ok, err := m.KVGet(genesisFlagKey, &applied)
	if err != nil {
		return false, err
	}
	return ok && applied, nil
}

// MarkGenesisApplied records that initial allocations were written so they
// are never applied twice.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(genesisFlagKey, true)
}
