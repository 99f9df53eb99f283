package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stablemint/crypto"
	"stablemint/storage"
)

var (
	// ErrZeroAmount is returned when a mutation is attempted with a nil,
	// zero, or negative amount.
	ErrZeroAmount = errors.New("ledger: amount must be positive")
	// ErrInsufficientBalance is returned when a decrease would drive an
	// entry below zero. The guard is explicit; entries are never allowed
	// to wrap.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

var (
	collateralPrefix = []byte("ledger/collateral/")
	debtPrefix       = []byte("ledger/debt/")
)

func collateralKey(account crypto.Address, asset string) []byte {
	suffix := account.Hex() + "/" + asset
	buf := make([]byte, len(collateralPrefix)+len(suffix))
	copy(buf, collateralPrefix)
	copy(buf[len(collateralPrefix):], suffix)
	return buf
}

func debtKey(account crypto.Address) []byte {
	suffix := account.Hex()
	buf := make([]byte, len(debtPrefix)+len(suffix))
	copy(buf, debtPrefix)
	copy(buf[len(debtPrefix):], suffix)
	return buf
}

// View is the read-only surface shared by the persistent store and a staged
// transaction. Solvency computations read through it so that health checks
// observe staged mutations before anything is committed.
type View interface {
	Collateral(account crypto.Address, asset string) (*big.Int, error)
	Debt(account crypto.Address) (*big.Int, error)
}

// Store is the authoritative record of per-account deposited collateral and
// minted debt. It is owned exclusively by the collateral engine; all
// mutations flow through a Tx obtained from Begin.
type Store struct {
	db storage.Database
}

// NewStore binds the ledger to its backing database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Collateral returns the deposited amount for (account, asset). Missing
// entries read as zero.
func (s *Store) Collateral(account crypto.Address, asset string) (*big.Int, error) {
	return s.readAmount(collateralKey(account, asset))
}

// Debt returns the minted debt for the account. Missing entries read as zero.
func (s *Store) Debt(account crypto.Address) (*big.Int, error) {
	return s.readAmount(debtKey(account))
}

// Begin opens a staged transaction over the store.
func (s *Store) Begin() *Tx {
	return &Tx{store: s, staged: make(map[string]*big.Int)}
}

func (s *Store) readAmount(key []byte) (*big.Int, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("ledger: decode amount: %w", err)
	}
	return amount, nil
}

func (s *Store) writeAmount(key []byte, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("ledger: encode amount: %w", err)
	}
	return s.db.Put(key, encoded)
}
