package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stablemint/crypto"
	"stablemint/storage"
)

// Module is an in-process fungible token bank backed by the key-value store.
// It plays the role of the external asset collaborators: each collateral
// asset is one module instance, and the pegged stable token is another with
// the engine as owner.
type Module struct {
	mu     sync.Mutex
	db     storage.Database
	symbol string
	owner  crypto.Address
}

// NewModule constructs a token module. Mint and burn are restricted to the
// owner address.
func NewModule(db storage.Database, symbol string, owner crypto.Address) (*Module, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, fmt.Errorf("token: symbol required")
	}
	if db == nil {
		return nil, fmt.Errorf("token: database required for %s", sym)
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("token: owner required for %s", sym)
	}
	return &Module{db: db, symbol: sym, owner: owner}, nil
}

// Symbol returns the token identifier.
func (m *Module) Symbol() string {
	if m == nil {
		return ""
	}
	return m.symbol
}

func (m *Module) balanceKey(addr crypto.Address) []byte {
	return []byte("token/" + m.symbol + "/balance/" + addr.Hex())
}

func (m *Module) supplyKey() []byte {
	return []byte("token/" + m.symbol + "/supply")
}

// BalanceOf returns the holder's balance; missing entries read as zero.
func (m *Module) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("token: module not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readAmount(m.balanceKey(addr))
}

// TotalSupply returns the total minted amount.
func (m *Module) TotalSupply() (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("token: module not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readAmount(m.supplyKey())
}

// Mint credits amount to the recipient. Only the owner may mint.
func (m *Module) Mint(caller, to crypto.Address, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("token: module not configured")
	}
	if !caller.Equal(m.owner) {
		return ErrNotOwner
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.credit(m.balanceKey(to), amount); err != nil {
		return err
	}
	return m.credit(m.supplyKey(), amount)
}

// Burn destroys amount from the caller's own balance. Only the owner may
// burn.
func (m *Module) Burn(caller crypto.Address, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("token: module not configured")
	}
	if !caller.Equal(m.owner) {
		return ErrNotOwner
	}
	if caller.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.readAmount(m.balanceKey(caller))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrBurnExceedsBalance
	}
	if err := m.writeAmount(m.balanceKey(caller), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	supply, err := m.readAmount(m.supplyKey())
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(supply, amount)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return m.writeAmount(m.supplyKey(), next)
}

// TransferFrom moves amount between two accounts.
func (m *Module) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("token: module not configured")
	}
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBalance, err := m.readAmount(m.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := m.writeAmount(m.balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.credit(m.balanceKey(to), amount)
}

// Bound returns a Transferrer view fixed to one holder, so that Transfer
// moves funds out of that holder's balance. The engine binds its custody
// address.
func (m *Module) Bound(holder crypto.Address) Transferrer {
	return &boundModule{module: m, holder: holder}
}

type boundModule struct {
	module *Module
	holder crypto.Address
}

func (b *boundModule) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	return b.module.TransferFrom(from, to, amount)
}

func (b *boundModule) Transfer(to crypto.Address, amount *big.Int) error {
	return b.module.TransferFrom(b.holder, to, amount)
}

func (m *Module) credit(key []byte, amount *big.Int) error {
	current, err := m.readAmount(key)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, amount)
	// Balances live in the unsigned 256-bit range; reject anything wider
	// rather than storing a value the wire encoding cannot represent.
	if _, overflow := uint256.FromBig(next); overflow {
		return ErrBalanceOverflow
	}
	return m.writeAmount(key, next)
}

func (m *Module) readAmount(key []byte) (*big.Int, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("token: decode amount: %w", err)
	}
	return amount, nil
}

func (m *Module) writeAmount(key []byte, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("token: encode amount: %w", err)
	}
	return m.db.Put(key, encoded)
}
