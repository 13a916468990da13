package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"insider-alerts/internal/alerting"
	"insider-alerts/internal/chain"
	"insider-alerts/internal/config"
	"insider-alerts/internal/markets"
	"insider-alerts/internal/wallet"
)

type fakeScanner struct {
	events []chain.FillEvent
	err    error
}

func (f *fakeScanner) ScanNext(ctx context.Context) ([]chain.FillEvent, error) {
	return f.events, f.err
}

type fakeAges struct {
	record wallet.Record
}

func (f *fakeAges) Estimate(ctx context.Context, addr common.Address) wallet.Record {
	r := f.record
	r.Address = addr
	return r
}

type fakeLookup struct {
	ref   markets.Ref
	err   error
	calls int
}

func (f *fakeLookup) ByToken(ctx context.Context, tokenID string) (markets.Ref, error) {
	f.calls++
	return f.ref, f.err
}

type fakeNotifier struct {
	notes []alerting.Notification
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Surveillance: config.SurveillanceConfig{
			MinBetAmount:       10_000,
			AlertCacheCapacity: 100,
			Pacing:             0,
		},
		Alerting: config.AlertingConfig{Enabled: true},
	}
}

func usdc(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), big.NewInt(1_000_000))
}

func fillEvent(amountUSD int64) chain.FillEvent {
	return chain.FillEvent{
		OrderHash:         common.HexToHash("0x01"),
		Maker:             common.HexToAddress("0xabc0000000000000000000000000000000000001"),
		MakerAssetID:      big.NewInt(123456789),
		MakerAmountFilled: usdc(amountUSD),
		BlockNumber:       42,
	}
}

func newWalletRecord() wallet.Record {
	return wallet.Record{AgeDays: 0, IsNew: true, Confidence: wallet.ConfidenceHeuristic}
}

func activeMarket() markets.Ref {
	return markets.Ref{ConditionID: "0xcond", Question: "Q?", Slug: "q", Active: true}
}

func newTestService(scan FillScanner, ages AgeEstimator, lookup markets.Lookup, notifier alerting.Notifier) *Service {
	return New(testConfig(), nil, scan, ages, lookup, nil, notifier, zerolog.Nop())
}

func TestTickBelowThresholdIsSilentlyDiscarded(t *testing.T) {
	notifier := &fakeNotifier{}
	lookup := &fakeLookup{ref: activeMarket()}
	svc := newTestService(
		&fakeScanner{events: []chain.FillEvent{fillEvent(9_999)}},
		&fakeAges{record: newWalletRecord()},
		lookup,
		notifier,
	)

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if len(notifier.notes) != 0 {
		t.Fatal("below-threshold trade must not alert")
	}
	if svc.alerted.Len() != 0 {
		t.Fatal("below-threshold trade must not consume a dedup slot")
	}
	if lookup.calls != 0 {
		t.Fatal("below-threshold trade must not trigger a market lookup")
	}
}

func TestTickAlertsOnceThenDedups(t *testing.T) {
	notifier := &fakeNotifier{}
	scan := &fakeScanner{events: []chain.FillEvent{fillEvent(50_000)}}
	svc := newTestService(scan, &fakeAges{record: newWalletRecord()}, &fakeLookup{ref: activeMarket()}, notifier)

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(notifier.notes))
	}
	if got := notifier.notes[0].Amount.StringFixed(0); got != "50000" {
		t.Fatalf("unexpected alert amount: %s", got)
	}

	// Replaying the identical event the same day must not re-alert.
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("duplicate event should be suppressed, got %d alerts", len(notifier.notes))
	}
}

func TestTickDiscardsEstablishedWallet(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(
		&fakeScanner{events: []chain.FillEvent{fillEvent(50_000)}},
		&fakeAges{record: wallet.Record{AgeDays: 200, IsNew: false, Confidence: wallet.ConfidenceHeuristic}},
		&fakeLookup{ref: activeMarket()},
		notifier,
	)

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("established wallet must not alert")
	}
}

func TestTickDiscardsClosedOrMissingMarket(t *testing.T) {
	for name, lookup := range map[string]*fakeLookup{
		"closed":    {ref: markets.Ref{Active: true, Closed: true}},
		"inactive":  {ref: markets.Ref{Active: false}},
		"not found": {err: markets.ErrNotFound},
	} {
		notifier := &fakeNotifier{}
		svc := newTestService(
			&fakeScanner{events: []chain.FillEvent{fillEvent(50_000)}},
			&fakeAges{record: newWalletRecord()},
			lookup,
			notifier,
		)

		if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
			t.Fatalf("%s: ProcessTick: %v", name, err)
		}
		if len(notifier.notes) != 0 {
			t.Fatalf("%s market must not alert", name)
		}
	}
}

func TestTickMarksAlertedEvenWhenDeliveryFails(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("webhook down")}
	svc := newTestService(
		&fakeScanner{events: []chain.FillEvent{fillEvent(50_000)}},
		&fakeAges{record: newWalletRecord()},
		&fakeLookup{ref: activeMarket()},
		notifier,
	)

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if svc.alerted.Len() != 1 {
		t.Fatal("dedup state must commit regardless of delivery outcome")
	}

	// The retry would otherwise storm the notifier.
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("failed delivery must not be retried, got %d attempts", len(notifier.notes))
	}
}

func TestTickSurvivesScanFailure(t *testing.T) {
	svc := newTestService(
		&fakeScanner{err: errors.New("connection refused")},
		&fakeAges{record: newWalletRecord()},
		&fakeLookup{ref: activeMarket()},
		&fakeNotifier{},
	)

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("scan failure must not propagate: %v", err)
	}
}

func TestOutcomeHeuristicParity(t *testing.T) {
	if got := outcomeFromAssetID(big.NewInt(4)); got != "Yes (heuristic)" {
		t.Fatalf("even asset id should map to Yes: %s", got)
	}
	if got := outcomeFromAssetID(big.NewInt(7)); got != "No (heuristic)" {
		t.Fatalf("odd asset id should map to No: %s", got)
	}
}
