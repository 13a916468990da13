package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillAlert is the audit record of one emitted alert. Dedup itself is
// in-memory; this table only exists for inspection and reporting.
type FillAlert struct {
	ID            int64
	OrderHash     string
	Wallet        string
	Amount        decimal.Decimal
	Outcome       string
	ConditionID   string
	Question      string
	BlockNumber   int64
	WalletAgeDays int
	AgeConfidence string
	DedupKey      string
	CreatedAt     time.Time
}
