package token

import (
	"fmt"
	"math/big"

	"stablemint/crypto"
)

// Controller is the engine-side delegate for the pegged stable token. It
// carries the engine's custody address so mint, pull, and burn act on the
// engine's behalf; the collaborator's own validation decides whether each
// call succeeds.
type Controller struct {
	token  Pegged
	engine crypto.Address
}

// NewController binds the pegged-token collaborator to the engine custody
// address.
func NewController(token Pegged, engine crypto.Address) (*Controller, error) {
	if token == nil {
		return nil, fmt.Errorf("token: pegged collaborator required")
	}
	if engine.IsZero() {
		return nil, fmt.Errorf("token: engine address required")
	}
	return &Controller{token: token, engine: engine}, nil
}

// Mint asks the collaborator to mint amount to the recipient.
func (c *Controller) Mint(to crypto.Address, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("token: controller not configured")
	}
	return c.token.Mint(c.engine, to, amount)
}

// Pull moves amount of the pegged token from the account into engine
// custody, the first half of a burn.
func (c *Controller) Pull(from crypto.Address, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("token: controller not configured")
	}
	return c.token.TransferFrom(from, c.engine, amount)
}

// Release moves amount of the pegged token out of engine custody back to an
// account, reversing an earlier Pull.
func (c *Controller) Release(to crypto.Address, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("token: controller not configured")
	}
	return c.token.TransferFrom(c.engine, to, amount)
}

// Burn destroys amount of the pegged token held in engine custody.
func (c *Controller) Burn(amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("token: controller not configured")
	}
	return c.token.Burn(c.engine, amount)
}
