// Package dedup suppresses repeat alerts for effectively-the-same trade.
package dedup

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Key fingerprints a trade for alert de-duplication. Chain fill events carry
// no external trade id, so the key is derived: near-identical same-day trades
// from one wallet intentionally collapse into one alert.
type Key string

var bucketSize = decimal.NewFromInt(100)

// KeyFor derives the dedup key from wallet, trade amount, asset id, and day.
// The amount is bucketed down to the nearest 100 units and the day is
// UTC-scoped, so the same key can fire again on a later calendar day.
func KeyFor(wallet common.Address, amount decimal.Decimal, assetID *big.Int, day time.Time) Key {
	bucket := amount.Div(bucketSize).Floor().Mul(bucketSize)
	return Key(fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(wallet.Hex()),
		bucket.StringFixed(0),
		assetSuffix(assetID),
		day.UTC().Format("2006-01-02"),
	))
}

func assetSuffix(assetID *big.Int) string {
	s := assetID.String()
	if len(s) <= 6 {
		return s
	}
	return s[len(s)-6:]
}

// AlertedSet is a bounded set of previously-alerted keys with FIFO eviction.
// Eviction is insertion-ordered rather than relevance-based; a simplicity
// trade-off that keeps both operations O(1) amortized.
type AlertedSet struct {
	capacity int
	order    []Key
	members  map[Key]struct{}
}

// NewAlertedSet builds a set holding at most capacity keys.
func NewAlertedSet(capacity int) *AlertedSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &AlertedSet{
		capacity: capacity,
		order:    make([]Key, 0, capacity),
		members:  make(map[Key]struct{}, capacity),
	}
}

// Contains reports membership without mutating the set.
func (s *AlertedSet) Contains(key Key) bool {
	_, ok := s.members[key]
	return ok
}

// Add inserts a key, evicting the oldest-inserted key when over capacity.
// Adding an existing key is a no-op.
func (s *AlertedSet) Add(key Key) {
	if _, ok := s.members[key]; ok {
		return
	}

	s.members[key] = struct{}{}
	s.order = append(s.order, key)

	if len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
}

// Len returns the current number of stored keys.
func (s *AlertedSet) Len() int {
	return len(s.order)
}
