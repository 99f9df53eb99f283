package token

import (
	"errors"
	"math/big"

	"stablemint/crypto"
)

var (
	// ErrZeroAddress is returned when a transfer, mint, or burn names the
	// zero address.
	ErrZeroAddress = errors.New("token: zero address not allowed")
	// ErrAmountZero is returned when an operation amount is nil, zero, or
	// negative.
	ErrAmountZero = errors.New("token: amount must be more than zero")
	// ErrBurnExceedsBalance is returned when a burn exceeds the holder's
	// balance.
	ErrBurnExceedsBalance = errors.New("token: burn amount exceeds balance")
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrNotOwner is returned when mint or burn is attempted by an account
	// other than the module owner.
	ErrNotOwner = errors.New("token: caller is not the owner")
	// ErrBalanceOverflow is returned when a mutation would exceed the
	// 256-bit balance range.
	ErrBalanceOverflow = errors.New("token: balance overflow")
)

// Transferrer moves fungible balances on behalf of a fixed holder. The
// collateral engine consumes this surface for both collateral assets and the
// pegged token; failure of either call aborts the enclosing operation.
type Transferrer interface {
	// TransferFrom moves amount from one account to another.
	TransferFrom(from, to crypto.Address, amount *big.Int) error
	// Transfer moves amount from the bound holder to the recipient.
	Transfer(to crypto.Address, amount *big.Int) error
}

// Pegged is the surface of the pegged-token collaborator the controller
// delegates to. Mint and Burn are owner-gated by the implementation; the
// collaborator enforces its own zero-address, zero-amount, and balance
// checks, so callers do not duplicate that validation.
type Pegged interface {
	Mint(caller, to crypto.Address, amount *big.Int) error
	Burn(caller crypto.Address, amount *big.Int) error
	TransferFrom(from, to crypto.Address, amount *big.Int) error
}
