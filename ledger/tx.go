package ledger

import (
	"math/big"

	"stablemint/crypto"
)

// Tx stages ledger mutations without touching the backing store. Reads see
// staged values first, so an in-flight operation observes its own effects.
// Commit writes every staged entry through; dropping the Tx discards them
// all. This is how every engine operation gets its all-or-nothing semantics.
type Tx struct {
	store  *Store
	staged map[string]*big.Int
}

func (t *Tx) Collateral(account crypto.Address, asset string) (*big.Int, error) {
	return t.read(collateralKey(account, asset))
}

func (t *Tx) Debt(account crypto.Address) (*big.Int, error) {
	return t.read(debtKey(account))
}

// IncreaseCollateral stages a collateral increase for (account, asset).
func (t *Tx) IncreaseCollateral(account crypto.Address, asset string, amount *big.Int) error {
	return t.increase(collateralKey(account, asset), amount)
}

// DecreaseCollateral stages a collateral decrease. The current staged value
// must cover the amount.
func (t *Tx) DecreaseCollateral(account crypto.Address, asset string, amount *big.Int) error {
	return t.decrease(collateralKey(account, asset), amount)
}

// IncreaseDebt stages a debt increase for the account.
func (t *Tx) IncreaseDebt(account crypto.Address, amount *big.Int) error {
	return t.increase(debtKey(account), amount)
}

// DecreaseDebt stages a debt decrease for the account.
func (t *Tx) DecreaseDebt(account crypto.Address, amount *big.Int) error {
	return t.decrease(debtKey(account), amount)
}

// Commit writes all staged entries to the store.
func (t *Tx) Commit() error {
	for key, amount := range t.staged {
		if err := t.store.writeAmount([]byte(key), amount); err != nil {
			return err
		}
	}
	t.staged = make(map[string]*big.Int)
	return nil
}

func (t *Tx) read(key []byte) (*big.Int, error) {
	if staged, ok := t.staged[string(key)]; ok {
		return new(big.Int).Set(staged), nil
	}
	return t.store.readAmount(key)
}

func (t *Tx) increase(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := t.read(key)
	if err != nil {
		return err
	}
	t.staged[string(key)] = new(big.Int).Add(current, amount)
	return nil
}

func (t *Tx) decrease(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := t.read(key)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.staged[string(key)] = new(big.Int).Sub(current, amount)
	return nil
}
