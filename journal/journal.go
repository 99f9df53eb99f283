package journal

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"lukechampine.com/blake3"
)

// Operation kinds recorded by the journal.
const (
	KindDeposit        = "DEPOSIT"
	KindMint           = "MINT"
	KindRedeem         = "REDEEM"
	KindBurn           = "BURN"
	KindDepositAndMint = "DEPOSIT_AND_MINT"
	KindRedeemForBurn  = "REDEEM_FOR_BURN"
)

// Terminal statuses for a journalled operation.
const (
	StatusApplied  = "APPLIED"
	StatusRejected = "REJECTED"
)

// Operation is one engine operation attempt as persisted. Amounts are
// decimal strings of the 18-decimal base units; a rejected attempt carries
// the failure reason.
type Operation struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind       string    `gorm:"index;not null"`
	Account    string    `gorm:"index;not null"`
	Asset      string    `gorm:"index"`
	Amount     string    `gorm:"not null"`
	DebtAmount string
	Status     string `gorm:"index;not null"`
	Reason     string
	Digest     string `gorm:"uniqueIndex;not null"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Operation{})
}

// Journal is an append-only record of engine operation attempts.
type Journal struct {
	db *gorm.DB
}

// Open connects to the configured backend ("postgres" in production,
// "sqlite" for local runs) and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database handle required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record persists one operation attempt. The ID, timestamp, and content
// digest are assigned here; the digest binds the entry's fields so later
// tampering is detectable.
func (j *Journal) Record(op Operation) (Operation, error) {
	if j == nil || j.db == nil {
		return Operation{}, fmt.Errorf("journal: not configured")
	}
	if op.Kind == "" || op.Account == "" || op.Status == "" {
		return Operation{}, fmt.Errorf("journal: kind, account, and status required")
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.Digest = digest(op)
	if err := j.db.Create(&op).Error; err != nil {
		return Operation{}, fmt.Errorf("journal: record: %w", err)
	}
	return op, nil
}

// ByAccount returns the most recent entries for an account, newest first.
func (j *Journal) ByAccount(account string, limit int) ([]Operation, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal: not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var ops []Operation
	err := j.db.Where("account = ?", account).
		Order("created_at DESC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return ops, nil
}

// Verify recomputes an entry's digest against its stored fields.
func Verify(op Operation) bool {
	return op.Digest == digest(op)
}

func digest(op Operation) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%d",
		op.ID, op.Kind, op.Account, op.Asset, op.Amount, op.DebtAmount,
		op.Status, op.Reason, op.CreatedAt.UnixNano())
	sum := blake3.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
