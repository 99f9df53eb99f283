package journal

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	j, err := New(db)
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	return j
}

func TestRecordAssignsIdentityAndDigest(t *testing.T) {
	j := setupJournal(t)

	op, err := j.Record(Operation{
		Kind:    KindDeposit,
		Account: "smx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqsrml0vu",
		Asset:   "WETH",
		Amount:  "15000000000000000000",
		Status:  StatusApplied,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if op.ID == uuid.Nil {
		t.Fatal("expected assigned id")
	}
	if op.CreatedAt.IsZero() {
		t.Fatal("expected assigned timestamp")
	}
	if op.Digest == "" {
		t.Fatal("expected content digest")
	}
	if !Verify(op) {
		t.Fatal("digest does not verify")
	}
	op.Amount = "1"
	if Verify(op) {
		t.Fatal("digest verified after tamper")
	}
}

func TestRecordRequiredFields(t *testing.T) {
	j := setupJournal(t)

	if _, err := j.Record(Operation{Kind: KindMint, Account: "smx1x"}); err == nil {
		t.Fatal("expected error for missing status")
	}
	if _, err := j.Record(Operation{Account: "smx1x", Status: StatusApplied}); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestByAccountNewestFirst(t *testing.T) {
	j := setupJournal(t)

	account := "smx1account"
	for i := 0; i < 3; i++ {
		if _, err := j.Record(Operation{
			Kind:    KindMint,
			Account: account,
			Amount:  fmt.Sprintf("%d", i+1),
			Status:  StatusApplied,
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if _, err := j.Record(Operation{Kind: KindBurn, Account: "smx1other", Amount: "9", Status: StatusRejected, Reason: "health factor below minimum"}); err != nil {
		t.Fatalf("record other: %v", err)
	}

	ops, err := j.ByAccount(account, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ops))
	}
	for _, op := range ops {
		if op.Account != account {
			t.Fatalf("unexpected account %q", op.Account)
		}
	}
}
