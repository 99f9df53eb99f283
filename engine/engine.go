package engine

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"stablemint/crypto"
	"stablemint/ledger"
	"stablemint/oracle"
	"stablemint/token"
)

// StableDelegate is the engine-facing surface of the pegged-token
// controller.
type StableDelegate interface {
	Mint(to crypto.Address, amount *big.Int) error
	Pull(from crypto.Address, amount *big.Int) error
	Release(to crypto.Address, amount *big.Int) error
	Burn(amount *big.Int) error
}

// Engine orchestrates deposits, issuance, redemption, and burns against the
// collateral and debt ledgers. Every public operation is a single atomic
// unit: ledger mutations are staged on a transaction, external token effects
// are tracked in an undo log, and nothing is retained unless every step and
// the solvency post-check pass.
type Engine struct {
	mu         sync.Mutex
	ledger     *ledger.Store
	custody    crypto.Address
	assets     []string
	adapters   map[string]*oracle.Adapter
	collateral map[string]token.Transferrer
	stable     StableDelegate
}

// NewEngine constructs the engine over an ordered list of approved
// collateral assets and their feed adapters. The lists are positional pairs;
// unequal lengths fail with ErrLengthMismatch. The asset set is immutable
// afterwards.
func NewEngine(
	custody crypto.Address,
	store *ledger.Store,
	symbols []string,
	adapters []*oracle.Adapter,
	collateral map[string]token.Transferrer,
	stable StableDelegate,
) (*Engine, error) {
	if len(symbols) != len(adapters) {
		return nil, ErrLengthMismatch
	}
	if custody.IsZero() {
		return nil, fmt.Errorf("collateral engine: custody address required")
	}
	if store == nil {
		return nil, errNilLedger
	}
	if stable == nil {
		return nil, fmt.Errorf("collateral engine: stable token delegate required")
	}
	e := &Engine{
		ledger:     store,
		custody:    custody,
		assets:     make([]string, 0, len(symbols)),
		adapters:   make(map[string]*oracle.Adapter, len(symbols)),
		collateral: make(map[string]token.Transferrer, len(symbols)),
		stable:     stable,
	}
	for i, raw := range symbols {
		symbol := normaliseAsset(raw)
		if symbol == "" {
			return nil, fmt.Errorf("collateral engine: empty asset symbol at index %d", i)
		}
		if adapters[i] == nil {
			return nil, fmt.Errorf("collateral engine: nil adapter for %s", symbol)
		}
		transferrer, ok := collateral[symbol]
		if !ok || transferrer == nil {
			return nil, fmt.Errorf("collateral engine: no token module for %s", symbol)
		}
		e.assets = append(e.assets, symbol)
		e.adapters[symbol] = adapters[i]
		e.collateral[symbol] = transferrer
	}
	return e, nil
}

// Assets returns the approved collateral symbols in construction order.
func (e *Engine) Assets() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.assets...)
}

// Custody returns the engine's custody address.
func (e *Engine) Custody() crypto.Address {
	return e.custody
}

// undoLog tracks compensating actions for external token effects already
// performed within an operation. When any later step fails, the log runs in
// reverse so no partial external effect is retained.
type undoLog struct {
	actions []func()
}

func (u *undoLog) push(fn func()) {
	u.actions = append(u.actions, fn)
}

func (u *undoLog) pop() {
	if len(u.actions) > 0 {
		u.actions = u.actions[:len(u.actions)-1]
	}
}

func (u *undoLog) run() {
	for i := len(u.actions) - 1; i >= 0; i-- {
		u.actions[i]()
	}
	u.actions = nil
}

// DepositCollateral pulls amount of the approved asset into engine custody
// and records it against the account. Deposits only improve solvency, so no
// post-check runs.
func (e *Engine) DepositCollateral(account crypto.Address, asset string, amount *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		return e.depositStep(tx, undo, account, asset, amount)
	})
}

// MintStable records debt for the account and delegates minting of the
// pegged token. A failing solvency check aborts with nothing committed.
func (e *Engine) MintStable(account crypto.Address, amount *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		return e.mintStep(tx, undo, account, amount)
	})
}

// RedeemCollateral releases amount of the asset back to the account,
// provided the remaining position stays solvent.
func (e *Engine) RedeemCollateral(account crypto.Address, asset string, amount *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		return e.redeemStep(tx, undo, account, asset, amount)
	})
}

// BurnStable pulls amount of the pegged token from the account, destroys
// it, and reduces the recorded debt. Burning can only improve the health
// factor; the post-check is kept regardless.
func (e *Engine) BurnStable(account crypto.Address, amount *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		return e.burnStep(tx, undo, account, amount)
	})
}

// DepositCollateralAndMint performs a deposit followed by a mint as one
// atomic unit on a shared staged transaction.
func (e *Engine) DepositCollateralAndMint(account crypto.Address, asset string, amountCollateral, amountDebt *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		if err := e.depositStep(tx, undo, account, asset, amountCollateral); err != nil {
			return err
		}
		return e.mintStep(tx, undo, account, amountDebt)
	})
}

// RedeemCollateralForBurn burns pegged tokens and then redeems collateral as
// one atomic unit on a shared staged transaction.
func (e *Engine) RedeemCollateralForBurn(account crypto.Address, asset string, amountCollateral, amountDebt *big.Int) error {
	return e.run(func(tx *ledger.Tx, undo *undoLog) error {
		if err := e.burnStep(tx, undo, account, amountDebt); err != nil {
			return err
		}
		return e.redeemStep(tx, undo, account, asset, amountCollateral)
	})
}

// Liquidate is reserved for a future liquidation mechanism. It performs no
// state change and returns successfully.
func (e *Engine) Liquidate(_ crypto.Address, _ string, _ crypto.Address, _ *big.Int) error {
	return nil
}

// QueryHealthFactor is reserved; it returns no usable value.
func (e *Engine) QueryHealthFactor(_ crypto.Address) (*big.Int, error) {
	return nil, nil
}

// run executes one public operation under the non-reentrant lock. The staged
// transaction commits only when every step succeeded; otherwise the undo log
// reverses any external effect already performed.
func (e *Engine) run(op func(*ledger.Tx, *undoLog) error) error {
	if e == nil || e.ledger == nil {
		return errNilLedger
	}
	// A call arriving while another is in progress, including re-entry
	// through a collaborator callback, is rejected rather than queued.
	if !e.mu.TryLock() {
		return ErrReentrantCall
	}
	defer e.mu.Unlock()

	tx := e.ledger.Begin()
	undo := &undoLog{}
	if err := op(tx, undo); err != nil {
		undo.run()
		return err
	}
	if err := tx.Commit(); err != nil {
		undo.run()
		return err
	}
	return nil
}

func (e *Engine) depositStep(tx *ledger.Tx, undo *undoLog, account crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	symbol := normaliseAsset(asset)
	transferrer, ok := e.collateral[symbol]
	if !ok {
		return ErrTokenNotAllowed
	}
	if err := tx.IncreaseCollateral(account, symbol, amount); err != nil {
		return err
	}
	if err := transferrer.TransferFrom(account, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	undo.push(func() { _ = transferrer.Transfer(account, amount) })
	return nil
}

func (e *Engine) mintStep(tx *ledger.Tx, undo *undoLog, account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := tx.IncreaseDebt(account, amount); err != nil {
		return err
	}
	// The solvency gate runs against the staged debt before the external
	// mint, so a rejected mint leaves no effect anywhere.
	if err := e.checkHealth(tx, account); err != nil {
		return err
	}
	if err := e.stable.Mint(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}
	undo.push(func() {
		if e.stable.Pull(account, amount) == nil {
			_ = e.stable.Burn(amount)
		}
	})
	return nil
}

func (e *Engine) redeemStep(tx *ledger.Tx, undo *undoLog, account crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	symbol := normaliseAsset(asset)
	// An asset outside the approved set has no ledger entry, so the
	// decrease below rejects it with the underflow guard.
	if err := tx.DecreaseCollateral(account, symbol, amount); err != nil {
		return err
	}
	if err := e.checkHealth(tx, account); err != nil {
		return err
	}
	transferrer, ok := e.collateral[symbol]
	if !ok {
		return ErrTokenNotAllowed
	}
	if err := transferrer.Transfer(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	undo.push(func() { _ = transferrer.TransferFrom(account, e.custody, amount) })
	return nil
}

func (e *Engine) burnStep(tx *ledger.Tx, undo *undoLog, account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := tx.DecreaseDebt(account, amount); err != nil {
		return err
	}
	if err := e.stable.Pull(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	undo.push(func() { _ = e.stable.Release(account, amount) })
	if err := e.stable.Burn(amount); err != nil {
		return fmt.Errorf("%w: %v", ErrBurnFailed, err)
	}
	// Once burned, reversing means minting the destroyed amount back.
	undo.pop()
	undo.push(func() { _ = e.stable.Mint(account, amount) })
	// Burning debt cannot lower the health factor; the check stays as a
	// guard against regressions in the flows above.
	return e.checkHealth(tx, account)
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
