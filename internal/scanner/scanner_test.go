package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"insider-alerts/internal/chain"
)

type fakeSource struct {
	height    uint64
	heightErr error
	fillsErr  error
	events    []chain.FillEvent
	ranges    [][2]uint64
}

func (f *fakeSource) CurrentHeight(ctx context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeSource) FillsInRange(ctx context.Context, from, to uint64) ([]chain.FillEvent, error) {
	if f.fillsErr != nil {
		return nil, f.fillsErr
	}
	f.ranges = append(f.ranges, [2]uint64{from, to})
	return f.events, nil
}

func newTestScanner(t *testing.T, source *fakeSource, chunk uint64) *Scanner {
	t.Helper()
	s := New(source, Options{ChunkSize: chunk}, zerolog.Nop())
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestScanNextNoNewBlocks(t *testing.T) {
	source := &fakeSource{height: 100}
	s := newTestScanner(t, source, 50)

	events, err := s.ScanNext(context.Background())
	if err != nil {
		t.Fatalf("ScanNext: %v", err)
	}
	if events != nil {
		t.Fatal("no new blocks should yield no events")
	}
	if len(source.ranges) != 0 {
		t.Fatal("no log query should be issued when caught up")
	}
}

func TestScanNextRespectsChunkCap(t *testing.T) {
	source := &fakeSource{height: 100}
	s := newTestScanner(t, source, 50)

	source.height = 1000
	for i := 0; i < 10; i++ {
		if _, err := s.ScanNext(context.Background()); err != nil {
			t.Fatalf("ScanNext: %v", err)
		}
	}

	for _, r := range source.ranges {
		if r[1]-r[0]+1 > 50 {
			t.Fatalf("range [%d, %d] exceeds chunk cap", r[0], r[1])
		}
	}
}

func TestScanNextCursorMonotoneAndGapless(t *testing.T) {
	source := &fakeSource{height: 100}
	s := newTestScanner(t, source, 50)

	source.height = 260
	prev := s.Cursor().LastProcessed
	for i := 0; i < 5; i++ {
		if _, err := s.ScanNext(context.Background()); err != nil {
			t.Fatalf("ScanNext: %v", err)
		}
		cur := s.Cursor().LastProcessed
		if cur < prev {
			t.Fatalf("cursor moved backwards: %d -> %d", prev, cur)
		}
		prev = cur
	}

	if prev != 260 {
		t.Fatalf("cursor should catch up to 260, got %d", prev)
	}

	expected := uint64(101)
	for _, r := range source.ranges {
		if r[0] != expected {
			t.Fatalf("range start %d re-issues or skips blocks (expected %d)", r[0], expected)
		}
		expected = r[1] + 1
	}

	if floor := s.Cursor().Floor; prev < floor {
		t.Fatalf("lastProcessed %d dropped below floor %d", prev, floor)
	}
}

func TestScanNextAdvancesOnEmptyChunk(t *testing.T) {
	source := &fakeSource{height: 100}
	s := newTestScanner(t, source, 50)

	source.height = 120
	if _, err := s.ScanNext(context.Background()); err != nil {
		t.Fatalf("ScanNext: %v", err)
	}
	if got := s.Cursor().LastProcessed; got != 120 {
		t.Fatalf("cursor should advance past empty chunks, got %d", got)
	}
}

func TestScanNextFailureLeavesCursor(t *testing.T) {
	source := &fakeSource{height: 100}
	s := newTestScanner(t, source, 50)

	source.height = 130
	source.fillsErr = errors.New("connection refused")

	if _, err := s.ScanNext(context.Background()); err == nil {
		t.Fatal("fetch failure should surface an error")
	}
	if got := s.Cursor().LastProcessed; got != 100 {
		t.Fatalf("cursor must not advance on failure, got %d", got)
	}

	source.fillsErr = nil
	if _, err := s.ScanNext(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if got := source.ranges[0]; got[0] != 101 || got[1] != 130 {
		t.Fatalf("retry should re-issue the same range, got [%d, %d]", got[0], got[1])
	}
}

func TestScanNextRequiresInit(t *testing.T) {
	s := New(&fakeSource{height: 10}, Options{}, zerolog.Nop())
	if _, err := s.ScanNext(context.Background()); err == nil {
		t.Fatal("uninitialized scanner should error")
	}
}
