// Package wallet estimates how long a trading wallet has existed.
package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Confidence qualifies how an age record was produced.
type Confidence string

const (
	// ConfidenceExact would require full history indexing; reserved for a
	// future index-backed estimator.
	ConfidenceExact Confidence = "exact"
	// ConfidenceHeuristic marks ages derived from the bounded balance search.
	ConfidenceHeuristic Confidence = "heuristic"
	// ConfidenceUnknown marks fail-open records produced after an RPC failure.
	ConfidenceUnknown Confidence = "unknown"
)

// Record describes the estimated age of a wallet.
type Record struct {
	Address    common.Address
	FirstSeen  time.Time
	AgeDays    int
	IsNew      bool
	Confidence Confidence
}

// ChainReader is the subset of chain queries the estimator needs.
type ChainReader interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address, height uint64) (*big.Int, error)
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	BlockTimestamp(ctx context.Context, height uint64) (time.Time, error)
}

// Options tune the estimation heuristics.
type Options struct {
	// NewAccountDays is the age at or below which a wallet counts as new.
	NewAccountDays int
	// EstablishedTxCount short-circuits the search for wallets with more
	// transactions than this.
	EstablishedTxCount uint64
	// LookbackBlocks bounds the balance search window.
	LookbackBlocks uint64
	// SearchProbes fixes the number of midpoint probes.
	SearchProbes int
	// CacheCapacity caps the first-seen cache (FIFO eviction).
	CacheCapacity int
}

// Estimator resolves wallet ages with a cached-first, heuristic-fallback
// strategy. Exact genesis detection would need a full history index; the
// bounded search trades precision for a fixed RPC budget per unknown wallet.
type Estimator struct {
	reader ChainReader
	opts   Options
	cache  *recordCache
	logger zerolog.Logger
	now    func() time.Time
}

// NewEstimator constructs an estimator with bounded caching.
func NewEstimator(reader ChainReader, opts Options, logger zerolog.Logger) *Estimator {
	if opts.NewAccountDays <= 0 {
		opts.NewAccountDays = 7
	}
	if opts.EstablishedTxCount == 0 {
		opts.EstablishedTxCount = 10
	}
	if opts.LookbackBlocks == 0 {
		opts.LookbackBlocks = 10_000
	}
	if opts.SearchProbes <= 0 {
		opts.SearchProbes = 5
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 10_000
	}

	return &Estimator{
		reader: reader,
		opts:   opts,
		cache:  newRecordCache(opts.CacheCapacity),
		logger: logger.With().Str("component", "wallet_estimator").Logger(),
		now:    time.Now,
	}
}

// Estimate returns the age record for addr. On any chain failure it fails
// open toward "new": a false positive costs one message, a false negative is
// the thing being guarded against.
func (e *Estimator) Estimate(ctx context.Context, addr common.Address) Record {
	if cached, ok := e.cache.get(addr); ok {
		return e.refresh(cached)
	}

	txCount, err := e.reader.TransactionCount(ctx, addr)
	if err != nil {
		e.logger.Warn().Err(err).Str("wallet", addr.Hex()).Msg("tx count lookup failed, treating wallet as new")
		return e.failOpen(addr)
	}

	if txCount > e.opts.EstablishedTxCount {
		// Obviously old wallet; skip the expensive search. The synthetic
		// first-seen keeps refresh arithmetic consistent on cache hits.
		record := Record{
			Address:    addr,
			FirstSeen:  e.now().AddDate(-1, 0, 0),
			AgeDays:    365,
			IsNew:      false,
			Confidence: ConfidenceHeuristic,
		}
		e.cache.put(record)
		return record
	}

	firstSeen, err := e.searchFirstSeen(ctx, addr)
	if err != nil {
		e.logger.Warn().Err(err).Str("wallet", addr.Hex()).Msg("balance search failed, treating wallet as new")
		return e.failOpen(addr)
	}

	record := Record{
		Address:    addr,
		FirstSeen:  firstSeen,
		Confidence: ConfidenceHeuristic,
	}
	record = e.refresh(record)
	e.cache.put(record)

	e.logger.Debug().
		Str("wallet", addr.Hex()).
		Int("age_days", record.AgeDays).
		Bool("is_new", record.IsNew).
		Msg("wallet age estimated")
	return record
}

// searchFirstSeen runs a fixed number of midpoint probes over the lookback
// window, narrowing toward the earliest block with nonzero balance. This is
// an approximation, not an exact first-transaction finder.
func (e *Estimator) searchFirstSeen(ctx context.Context, addr common.Address) (time.Time, error) {
	height, err := e.reader.CurrentHeight(ctx)
	if err != nil {
		return time.Time{}, err
	}

	lo := uint64(0)
	if height > e.opts.LookbackBlocks {
		lo = height - e.opts.LookbackBlocks
	}
	hi := height

	for i := 0; i < e.opts.SearchProbes && lo < hi; i++ {
		mid := lo + (hi-lo)/2
		balance, err := e.reader.BalanceAt(ctx, addr, mid)
		if err != nil {
			return time.Time{}, err
		}
		if balance.Sign() > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return e.reader.BlockTimestamp(ctx, hi)
}

// refresh recomputes the derived fields against the current clock, so age
// grows monotonically across calls for a cached wallet.
func (e *Estimator) refresh(record Record) Record {
	age := int(e.now().Sub(record.FirstSeen).Hours() / 24)
	if age < 0 {
		age = 0
	}
	record.AgeDays = age
	record.IsNew = age <= e.opts.NewAccountDays
	return record
}

// failOpen records are not cached: a transient RPC failure should not pin a
// wallet to "new" once the chain is reachable again.
func (e *Estimator) failOpen(addr common.Address) Record {
	return Record{
		Address:    addr,
		FirstSeen:  e.now(),
		AgeDays:    0,
		IsNew:      true,
		Confidence: ConfidenceUnknown,
	}
}

// CachedWallets returns the number of wallets currently cached.
func (e *Estimator) CachedWallets() int {
	return e.cache.len()
}

// recordCache is a bounded FIFO cache of first-seen records.
type recordCache struct {
	capacity int
	order    []common.Address
	records  map[common.Address]Record
}

func newRecordCache(capacity int) *recordCache {
	return &recordCache{
		capacity: capacity,
		order:    make([]common.Address, 0, capacity),
		records:  make(map[common.Address]Record, capacity),
	}
}

func (c *recordCache) get(addr common.Address) (Record, bool) {
	record, ok := c.records[addr]
	return record, ok
}

func (c *recordCache) put(record Record) {
	if _, ok := c.records[record.Address]; ok {
		c.records[record.Address] = record
		return
	}

	c.records[record.Address] = record
	c.order = append(c.order, record.Address)

	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.records, oldest)
	}
}

func (c *recordCache) len() int {
	return len(c.order)
}
