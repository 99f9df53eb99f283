package token

import (
	"errors"
	"math/big"
	"testing"

	"stablemint/crypto"
	"stablemint/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = suffix
	return crypto.MustNewAddress(raw)
}

func newTestModule(t *testing.T, owner crypto.Address) *Module {
	t.Helper()
	module, err := NewModule(storage.NewMemDB(), "USDm", owner)
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return module
}

func TestMintRequiresOwner(t *testing.T) {
	owner := testAddress(0x01)
	stranger := testAddress(0x02)
	holder := testAddress(0x03)
	module := newTestModule(t, owner)

	if err := module.Mint(stranger, holder, big.NewInt(100)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := module.Mint(owner, holder, big.NewInt(100)); err != nil {
		t.Fatalf("owner mint: %v", err)
	}
	balance, err := module.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance 100, got %s", balance)
	}
	supply, err := module.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected supply 100, got %s", supply)
	}
}

func TestMintValidation(t *testing.T) {
	owner := testAddress(0x01)
	module := newTestModule(t, owner)

	if err := module.Mint(owner, crypto.Address{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := module.Mint(owner, testAddress(0x04), big.NewInt(0)); !errors.Is(err, ErrAmountZero) {
		t.Fatalf("expected ErrAmountZero, got %v", err)
	}
}

func TestBurnGuards(t *testing.T) {
	owner := testAddress(0x01)
	module := newTestModule(t, owner)

	if err := module.Mint(owner, owner, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := module.Burn(testAddress(0x05), big.NewInt(10)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := module.Burn(owner, big.NewInt(51)); !errors.Is(err, ErrBurnExceedsBalance) {
		t.Fatalf("expected ErrBurnExceedsBalance, got %v", err)
	}
	if err := module.Burn(owner, big.NewInt(50)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, _ := module.BalanceOf(owner)
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance after burn, got %s", balance)
	}
	supply, _ := module.TotalSupply()
	if supply.Sign() != 0 {
		t.Fatalf("expected zero supply after burn, got %s", supply)
	}
}

func TestTransferFromMovesBalance(t *testing.T) {
	owner := testAddress(0x01)
	alice := testAddress(0x0A)
	bob := testAddress(0x0B)
	module := newTestModule(t, owner)

	if err := module.Mint(owner, alice, big.NewInt(30)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := module.TransferFrom(alice, bob, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := module.TransferFrom(alice, bob, big.NewInt(12)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBalance, _ := module.BalanceOf(alice)
	bobBalance, _ := module.BalanceOf(bob)
	if aliceBalance.Cmp(big.NewInt(18)) != 0 || bobBalance.Cmp(big.NewInt(12)) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBalance, bobBalance)
	}
}

func TestBoundTransferUsesHolder(t *testing.T) {
	owner := testAddress(0x01)
	custody := testAddress(0x0C)
	recipient := testAddress(0x0D)
	module := newTestModule(t, owner)

	if err := module.Mint(owner, custody, big.NewInt(9)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bound := module.Bound(custody)
	if err := bound.Transfer(recipient, big.NewInt(9)); err != nil {
		t.Fatalf("bound transfer: %v", err)
	}
	balance, _ := module.BalanceOf(recipient)
	if balance.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("expected recipient balance 9, got %s", balance)
	}
}

func TestBalanceOverflowRejected(t *testing.T) {
	owner := testAddress(0x01)
	holder := testAddress(0x0E)
	module := newTestModule(t, owner)

	almostMax := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := module.Mint(owner, holder, almostMax); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := module.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestControllerDelegates(t *testing.T) {
	owner := testAddress(0x01)
	engine := owner // pegged token is owned by the engine custody account
	user := testAddress(0x0F)
	module := newTestModule(t, owner)

	controller, err := NewController(module, engine)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := controller.Mint(user, big.NewInt(40)); err != nil {
		t.Fatalf("controller mint: %v", err)
	}
	if err := controller.Pull(user, big.NewInt(40)); err != nil {
		t.Fatalf("controller pull: %v", err)
	}
	if err := controller.Release(user, big.NewInt(40)); err != nil {
		t.Fatalf("controller release: %v", err)
	}
	balance, _ := module.BalanceOf(user)
	if balance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected release to restore user balance, got %s", balance)
	}
	if err := controller.Pull(user, big.NewInt(40)); err != nil {
		t.Fatalf("controller pull after release: %v", err)
	}
	if err := controller.Burn(big.NewInt(40)); err != nil {
		t.Fatalf("controller burn: %v", err)
	}
	supply, _ := module.TotalSupply()
	if supply.Sign() != 0 {
		t.Fatalf("expected supply zero after burn, got %s", supply)
	}
}
