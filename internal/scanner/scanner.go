// Package scanner advances a watermark cursor over new exchange blocks.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"insider-alerts/internal/chain"
)

// FillSource supplies chain height and fill logs for a bounded range.
type FillSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	FillsInRange(ctx context.Context, from, to uint64) ([]chain.FillEvent, error)
}

// Cursor tracks the scan watermark. LastProcessed never drops below Floor
// and never moves backwards.
type Cursor struct {
	Floor         uint64
	LastProcessed uint64
}

// Options tune scanner behaviour.
type Options struct {
	// ChunkSize caps blocks per log query; node providers reject overly
	// large ranges.
	ChunkSize uint64
}

// Scanner pulls new fill events in bounded chunks from a floor set at
// startup. It never looks behind the floor: historical backfill is a
// separate, explicit operation.
type Scanner struct {
	source      FillSource
	opts        Options
	cursor      Cursor
	initialized bool
	logger      zerolog.Logger
}

// New constructs a scanner. Init must be called before ScanNext.
func New(source FillSource, opts Options, logger zerolog.Logger) *Scanner {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 50
	}
	return &Scanner{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

// Init pins the cursor to the current chain height.
func (s *Scanner) Init(ctx context.Context) error {
	height, err := s.source.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("resolve starting height: %w", err)
	}

	s.cursor = Cursor{Floor: height, LastProcessed: height}
	s.initialized = true
	s.logger.Info().Uint64("floor", height).Msg("scan cursor initialized")
	return nil
}

// ScanNext fetches fill events for the next chunk of unprocessed blocks.
// An empty result with nil error means no new blocks; that is the common
// case, not a failure. The cursor only advances after a successful fetch,
// so a failed range is retried on the next call.
func (s *Scanner) ScanNext(ctx context.Context) ([]chain.FillEvent, error) {
	if !s.initialized {
		return nil, errors.New("scanner not initialized")
	}

	height, err := s.source.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("current height: %w", err)
	}

	if height <= s.cursor.LastProcessed {
		return nil, nil
	}

	from := s.cursor.LastProcessed + 1
	to := height
	if to > s.cursor.LastProcessed+s.opts.ChunkSize {
		to = s.cursor.LastProcessed + s.opts.ChunkSize
	}

	events, err := s.source.FillsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fills in range [%d, %d]: %w", from, to, err)
	}

	s.cursor.LastProcessed = to
	if len(events) > 0 {
		s.logger.Debug().
			Uint64("from", from).
			Uint64("to", to).
			Int("events", len(events)).
			Msg("fill events fetched")
	}
	return events, nil
}

// Cursor returns a snapshot of the current cursor.
func (s *Scanner) Cursor() Cursor {
	return s.cursor
}
