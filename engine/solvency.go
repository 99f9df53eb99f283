package engine

import (
	"math/big"

	"stablemint/crypto"
	"stablemint/ledger"
	"stablemint/oracle"
)

// Flat risk parameters, fixed at construction for the engine's lifetime.
// Only half of nominal collateral value counts toward solvency: a 200%
// overcollateralization requirement.
const (
	liquidationThreshold = 50
	liquidationPrecision = 100
)

var (
	// MinHealthFactor is 1 at the internal 18-decimal precision.
	MinHealthFactor = new(big.Int).Set(oracle.PricePrecision)
	// MaxHealthFactor is returned for accounts with no debt; with nothing
	// to be unsafe against, the ratio saturates at the top of the unsigned
	// 256-bit range.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// collateralValue sums the USD value of every approved asset the account has
// deposited, read through the supplied view so staged mutations are priced.
func (e *Engine) collateralValue(view ledger.View, account crypto.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.assets {
		deposited, err := view.Collateral(account, asset)
		if err != nil {
			return nil, err
		}
		if deposited.Sign() == 0 {
			continue
		}
		value, err := e.adapters[asset].ValueInUSD(deposited)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// healthFactor computes the solvency margin for the account against the
// supplied view.
func (e *Engine) healthFactor(view ledger.View, account crypto.Address) (*big.Int, error) {
	debt, err := view.Debt(account)
	if err != nil {
		return nil, err
	}
	if debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor), nil
	}
	value, err := e.collateralValue(view, account)
	if err != nil {
		return nil, err
	}
	adjusted := new(big.Int).Mul(value, big.NewInt(liquidationThreshold))
	adjusted.Quo(adjusted, big.NewInt(liquidationPrecision))
	factor := new(big.Int).Mul(adjusted, oracle.PricePrecision)
	factor.Quo(factor, debt)
	return factor, nil
}

// checkHealth enforces the minimum-solvency invariant. It runs against the
// staged view after every operation that can reduce solvency, before any
// external effect or commit, so a failing state is never observable.
func (e *Engine) checkHealth(view ledger.View, account crypto.Address) error {
	factor, err := e.healthFactor(view, account)
	if err != nil {
		return err
	}
	if factor.Cmp(MinHealthFactor) < 0 {
		return &HealthFactorError{Value: factor}
	}
	return nil
}

// AccountCollateralValue reports the committed USD value of an account's
// deposits at the internal 18-decimal precision.
func (e *Engine) AccountCollateralValue(account crypto.Address) (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, errNilLedger
	}
	return e.collateralValue(e.ledger, account)
}

// CollateralOf reports the committed deposited amount for (account, asset).
func (e *Engine) CollateralOf(account crypto.Address, asset string) (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, errNilLedger
	}
	return e.ledger.Collateral(account, normaliseAsset(asset))
}

// DebtOf reports the committed minted debt for the account.
func (e *Engine) DebtOf(account crypto.Address) (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, errNilLedger
	}
	return e.ledger.Debt(account)
}
