package dedup

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestKeyForBucketsAmount(t *testing.T) {
	wallet := common.HexToAddress("0x1234000000000000000000000000000000000000")
	asset, _ := new(big.Int).SetString("71321045679252212594626385532706912750332728571942532289631379312455583992563", 10)
	day := time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC)

	a := KeyFor(wallet, decimal.NewFromInt(50_010), asset, day)
	b := KeyFor(wallet, decimal.NewFromInt(50_099), asset, day)
	c := KeyFor(wallet, decimal.NewFromInt(50_100), asset, day)

	if a != b {
		t.Fatalf("amounts in the same 100 bucket should collide: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("amounts in different buckets should differ: %s", a)
	}
}

func TestKeyForDayScoped(t *testing.T) {
	wallet := common.HexToAddress("0x02")
	asset := big.NewInt(123456789)

	a := KeyFor(wallet, decimal.NewFromInt(10_000), asset, time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	b := KeyFor(wallet, decimal.NewFromInt(10_000), asset, time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC))

	if a == b {
		t.Fatal("keys on different calendar days should differ")
	}
}

func TestKeyForShortAssetID(t *testing.T) {
	key := KeyFor(common.HexToAddress("0x03"), decimal.NewFromInt(10_000), big.NewInt(42), time.Now())
	if key == "" {
		t.Fatal("key should not be empty for short asset ids")
	}
}

func TestAlertedSetFIFOEviction(t *testing.T) {
	set := NewAlertedSet(5)

	for i := 0; i < 6; i++ {
		set.Add(Key(fmt.Sprintf("key-%d", i)))
	}

	if set.Len() != 5 {
		t.Fatalf("set size should be capped at 5, got %d", set.Len())
	}
	if set.Contains("key-0") {
		t.Fatal("earliest-inserted key should be evicted")
	}
	for i := 1; i < 6; i++ {
		if !set.Contains(Key(fmt.Sprintf("key-%d", i))) {
			t.Fatalf("key-%d should remain present", i)
		}
	}
}

func TestAlertedSetDuplicateAddIsNoop(t *testing.T) {
	set := NewAlertedSet(3)
	set.Add("a")
	set.Add("a")
	set.Add("b")

	if set.Len() != 2 {
		t.Fatalf("duplicate add should not grow the set, got %d", set.Len())
	}
}

func TestAlertedSetNeverExceedsCapacity(t *testing.T) {
	set := NewAlertedSet(8)
	for i := 0; i < 100; i++ {
		set.Add(Key(fmt.Sprintf("key-%d", i)))
		if set.Len() > 8 {
			t.Fatalf("set exceeded capacity after %d insertions: %d", i+1, set.Len())
		}
	}
}
