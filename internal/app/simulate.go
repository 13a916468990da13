package app

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"insider-alerts/internal/chain"
	"insider-alerts/internal/markets"
	"insider-alerts/internal/service"
	"insider-alerts/internal/wallet"
)

// SimulateAlert 构造一笔合成大额交易并走完整个告警流水线。
func (a *App) SimulateAlert(ctx context.Context, amountUSD float64, walletHex string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	maker := common.HexToAddress(walletHex)
	atoms, _ := big.NewFloat(amountUSD * 1e6).Int(nil)

	scan := &staticScanner{events: []chain.FillEvent{{
		OrderHash:         common.HexToHash("0x73696d756c617465"),
		Maker:             maker,
		MakerAssetID:      big.NewInt(1234567890),
		MakerAmountFilled: atoms,
		BlockNumber:       0,
	}}}

	ages := &staticAges{record: wallet.Record{
		Address:    maker,
		FirstSeen:  time.Now().UTC(),
		AgeDays:    0,
		IsNew:      true,
		Confidence: wallet.ConfidenceHeuristic,
	}}

	lookup := &staticLookup{ref: markets.Ref{
		ConditionID: "0x73696d",
		Question:    "Simulated market (no live data)",
		Slug:        "simulated-market",
		Active:      true,
	}}

	svc := service.New(a.Config, nil, scan, ages, lookup, nil, notifier, a.Logger)
	return svc.ProcessTick(ctx, time.Now().UTC())
}

type staticScanner struct {
	events []chain.FillEvent
}

func (s *staticScanner) ScanNext(ctx context.Context) ([]chain.FillEvent, error) {
	events := s.events
	s.events = nil
	return events, nil
}

type staticAges struct {
	record wallet.Record
}

func (s *staticAges) Estimate(ctx context.Context, addr common.Address) wallet.Record {
	record := s.record
	record.Address = addr
	return record
}

type staticLookup struct {
	ref markets.Ref
}

func (s *staticLookup) ByToken(ctx context.Context, tokenID string) (markets.Ref, error) {
	return s.ref, nil
}

var _ service.FillScanner = (*staticScanner)(nil)
var _ service.AgeEstimator = (*staticAges)(nil)
var _ markets.Lookup = (*staticLookup)(nil)
