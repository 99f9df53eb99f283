package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilLedger = errors.New("collateral engine: ledger not configured")

	// ErrZeroAmount rejects operations with a nil, zero, or negative amount.
	ErrZeroAmount = errors.New("collateral engine: amount must be positive")
	// ErrLengthMismatch is returned at construction when the asset and
	// adapter lists differ in length.
	ErrLengthMismatch = errors.New("collateral engine: asset and adapter lists differ in length")
	// ErrTokenNotAllowed rejects deposits of assets outside the approved set.
	ErrTokenNotAllowed = errors.New("collateral engine: collateral asset not allowed")
	// ErrTransferFailed wraps a failed external asset transfer.
	ErrTransferFailed = errors.New("collateral engine: transfer failed")
	// ErrMintFailed wraps a failed delegated mint.
	ErrMintFailed = errors.New("collateral engine: mint failed")
	// ErrBurnFailed wraps a failed delegated burn.
	ErrBurnFailed = errors.New("collateral engine: burn failed")
	// ErrHealthFactorTooLow is the sentinel wrapped by HealthFactorError.
	ErrHealthFactorTooLow = errors.New("collateral engine: health factor below minimum")
	// ErrReentrantCall rejects a public operation entered while another is
	// still in progress.
	ErrReentrantCall = errors.New("collateral engine: reentrant call")
)

// HealthFactorError reports a failed solvency post-check together with the
// computed health factor, so callers can see how far below the minimum the
// attempted state would have been.
type HealthFactorError struct {
	Value *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("%v: %s", ErrHealthFactorTooLow, e.Value)
}

func (e *HealthFactorError) Unwrap() error {
	return ErrHealthFactorTooLow
}
