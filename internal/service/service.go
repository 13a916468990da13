package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"insider-alerts/internal/alerting"
	"insider-alerts/internal/chain"
	"insider-alerts/internal/config"
	"insider-alerts/internal/dedup"
	"insider-alerts/internal/markets"
	"insider-alerts/internal/scheduler"
	"insider-alerts/internal/storage"
	"insider-alerts/internal/wallet"
)

// usdcDecimals is the fixed-decimal scaling of the settlement asset. Sizing
// trades through it is an approximation, not exact USD pricing.
const usdcDecimals int32 = 6

// FillScanner yields the next chunk of unprocessed fill events.
type FillScanner interface {
	ScanNext(ctx context.Context) ([]chain.FillEvent, error)
}

// AgeEstimator resolves wallet age records. An interface so an exact
// index-backed estimator can replace the heuristic one without touching
// the loop.
type AgeEstimator interface {
	Estimate(ctx context.Context, addr common.Address) wallet.Record
}

// Service drives the surveillance pipeline: scan, amount filter, dedup,
// wallet-age check, market check, alert emission. All mutable state (the
// alerted set, the wallet cache behind the estimator, the scan cursor) is
// owned here or by injected collaborators, never package globals.
type Service struct {
	scheduler *scheduler.Scheduler
	scanner   FillScanner
	ages      AgeEstimator
	lookup    markets.Lookup
	alerted   *dedup.AlertedSet
	notifier  alerting.Notifier
	store     storage.AlertStore
	logger    zerolog.Logger

	minBet   decimal.Decimal
	pacing   time.Duration
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
	now      func() time.Time
}

// New constructs the surveillance service.
func New(cfg *config.Config, sched *scheduler.Scheduler, scan FillScanner, ages AgeEstimator, lookup markets.Lookup, store storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		scanner:   scan,
		ages:      ages,
		lookup:    lookup,
		alerted:   dedup.NewAlertedSet(cfg.Surveillance.AlertCacheCapacity),
		notifier:  notifier,
		store:     store,
		logger:    logger.With().Str("component", "service").Logger(),
		minBet:    decimal.NewFromFloat(cfg.Surveillance.MinBetAmount),
		pacing:    cfg.Surveillance.Pacing,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Database.AdvisoryLockKey,
		now:       time.Now,
	}
}

// Run begins the surveillance loop. One tick runs to completion before the
// next is scheduled; nothing here needs locking.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单个扫描周期。Scan failures are logged and skipped; the
// loop is designed to run indefinitely and self-heal on the next tick.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	events, err := s.scanner.ScanNext(ctx)
	if err != nil {
		// Cursor did not advance; the same range is retried next tick.
		s.logger.Error().Err(err).Time("tick", tick).Msg("scan failed, skipping tick")
		return nil
	}

	for _, event := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.processEvent(ctx, event)
	}
	return nil
}

// processEvent walks one fill through the pipeline. Every branch is
// terminal: a discarded event is never retried.
func (s *Service) processEvent(ctx context.Context, event chain.FillEvent) {
	amount := decimal.NewFromBigInt(event.MakerAmountFilled, -usdcDecimals)
	if amount.LessThan(s.minBet) {
		return
	}

	key := dedup.KeyFor(event.Maker, amount, event.MakerAssetID, s.now())
	if s.alerted.Contains(key) {
		s.logger.Debug().
			Str("wallet", event.Maker.Hex()).
			Str("key", string(key)).
			Msg("already alerted, discarding")
		return
	}

	walletInfo := s.ages.Estimate(ctx, event.Maker)
	if !walletInfo.IsNew {
		s.logger.Debug().
			Str("wallet", event.Maker.Hex()).
			Int("age_days", walletInfo.AgeDays).
			Msg("wallet not new, discarding")
		return
	}

	ref, err := s.lookup.ByToken(ctx, event.MakerAssetID.String())
	if err != nil {
		if !errors.Is(err, markets.ErrNotFound) {
			s.logger.Warn().Err(err).Str("wallet", event.Maker.Hex()).Msg("market lookup failed")
		}
		return
	}
	if ref.Closed || !ref.Active {
		s.logger.Debug().Str("market", ref.Slug).Msg("market closed or inactive, discarding")
		return
	}

	note := alerting.Notification{
		Market:      ref,
		Amount:      amount,
		Outcome:     outcomeFromAssetID(event.MakerAssetID),
		Wallet:      event.Maker,
		WalletAge:   walletInfo,
		OrderHash:   event.OrderHash.Hex(),
		BlockNumber: event.BlockNumber,
		Timestamp:   s.now(),
	}

	if s.alertsOn && s.notifier != nil {
		// Fire and forget. The alert is marked regardless of delivery
		// outcome so a flaky notifier cannot cause alert storms.
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("wallet", event.Maker.Hex()).Msg("failed to dispatch alert")
		}
	}

	s.alerted.Add(key)

	s.logger.Info().
		Str("wallet", event.Maker.Hex()).
		Str("market", ref.Slug).
		Str("amount_usd", amount.StringFixed(2)).
		Str("wallet_age", alerting.DescribeAge(walletInfo)).
		Uint64("block", event.BlockNumber).
		Msg("alert emitted")

	if s.store != nil {
		record := storage.FillAlert{
			OrderHash:     event.OrderHash.Hex(),
			Wallet:        event.Maker.Hex(),
			Amount:        amount,
			Outcome:       note.Outcome,
			ConditionID:   ref.ConditionID,
			Question:      ref.Question,
			BlockNumber:   int64(event.BlockNumber),
			WalletAgeDays: walletInfo.AgeDays,
			AgeConfidence: string(walletInfo.Confidence),
			DedupKey:      string(key),
		}
		if _, err := s.store.InsertFillAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}

	s.pace(ctx)
}

// outcomeFromAssetID maps an outcome token to a side by parity. The real
// token encoding is opaque; this is a labeled best-effort heuristic, not
// ground truth.
func outcomeFromAssetID(assetID *big.Int) string {
	if assetID.Bit(0) == 0 {
		return "Yes (heuristic)"
	}
	return "No (heuristic)"
}

// pace applies the inter-event delay that keeps downstream channels within
// their rate limits. Cancellation aborts between events, never mid-call.
func (s *Service) pace(ctx context.Context) {
	if s.pacing <= 0 {
		return
	}
	timer := time.NewTimer(s.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
