package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"insider-alerts/internal/storage"
)

// Backfill 扫描历史区块区间并将符合阈值的成交写入审计表。No notifications
// are sent: backfill is for analysis, the live cursor never looks back.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.FromBlock == 0 || opts.ToBlock == 0 || opts.FromBlock > opts.ToBlock {
		return errors.New("回填范围不合法，请检查 --from-block/--to-block")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	client := a.newChainClient()
	minBet := decimal.NewFromFloat(a.Config.Surveillance.MinBetAmount)
	chunk := a.Config.Surveillance.ChunkSize

	matched := 0
	failed := 0
	for from := opts.FromBlock; from <= opts.ToBlock; from += chunk {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		to := from + chunk - 1
		if to > opts.ToBlock {
			to = opts.ToBlock
		}

		events, err := client.FillsInRange(ctx, from, to)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("from", from).Uint64("to", to).Msg("回填区间抓取失败")
			continue
		}

		for _, event := range events {
			amount := decimal.NewFromBigInt(event.MakerAmountFilled, -6)
			if amount.LessThan(minBet) {
				continue
			}
			matched++

			if store == nil {
				a.Logger.Info().
					Str("wallet", event.Maker.Hex()).
					Str("amount_usd", amount.StringFixed(2)).
					Uint64("block", event.BlockNumber).
					Msg("qualifying historical fill")
				continue
			}

			record := storage.FillAlert{
				OrderHash:   event.OrderHash.Hex(),
				Wallet:      event.Maker.Hex(),
				Amount:      amount,
				Outcome:     "unresolved",
				BlockNumber: int64(event.BlockNumber),
				DedupKey:    "backfill|" + event.OrderHash.Hex(),
			}
			if _, err := store.InsertFillAlert(ctx, record); err != nil {
				failed++
				a.Logger.Error().Err(err).Uint64("block", event.BlockNumber).Msg("回填写入失败")
			}
		}
	}

	a.Logger.Info().Int("matched", matched).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分区间回填失败，请检查日志")
	}
	return nil
}
