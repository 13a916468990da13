package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"insider-alerts/internal/alerting"
	"insider-alerts/internal/chain"
	"insider-alerts/internal/config"
	"insider-alerts/internal/markets"
	"insider-alerts/internal/scanner"
	"insider-alerts/internal/scheduler"
	"insider-alerts/internal/service"
	"insider-alerts/internal/storage"
	"insider-alerts/internal/wallet"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newChainClient() *chain.Client {
	return chain.NewClient(chain.Options{
		RPCURL:          a.Config.Chain.RPCURL,
		ExchangeAddress: a.Config.Chain.ExchangeAddress,
		Timeout:         a.Config.Chain.RequestTimeout,
	}, a.Logger)
}

func (a *App) newMarketLookup() markets.Lookup {
	return markets.NewGamma(markets.Options{
		BaseURL:   a.Config.Markets.BaseURL,
		Timeout:   a.Config.Markets.RequestTimeout,
		UserAgent: a.Config.Markets.UserAgent,
	}, a.Logger)
}

func (a *App) newEstimator(client *chain.Client) *wallet.Estimator {
	cfg := a.Config.Surveillance
	return wallet.NewEstimator(client, wallet.Options{
		NewAccountDays:     cfg.NewAccountDays,
		EstablishedTxCount: cfg.EstablishedTxCount,
		LookbackBlocks:     cfg.LookbackBlocks,
		SearchProbes:       cfg.SearchProbes,
		CacheCapacity:      cfg.WalletCacheCapacity,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var channels []alerting.Notifier

	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if a.Config.Alerting.Discord.Enabled {
		cfg := a.Config.Alerting.Discord
		channels = append(channels, alerting.NewDiscordNotifier(cfg.WebhookURL, cfg.Username, 10*time.Second, a.Logger))
	}

	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	default:
		return alerting.NewMulti(a.Logger, channels...)
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running surveillance service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit trail disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	client := a.newChainClient()

	scan := scanner.New(client, scanner.Options{ChunkSize: a.Config.Surveillance.ChunkSize}, a.Logger)
	// Pin the floor to the current height: the live loop never backfills.
	if err := scan.Init(ctx); err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Surveillance.Interval,
		StartupDelay: a.Config.Surveillance.StartupDelay,
	}, a.Logger)

	estimator := a.newEstimator(client)
	lookup := a.newMarketLookup()
	notifier := a.newNotifier()
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
	}

	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
	}

	svc := service.New(a.Config, sched, scan, estimator, lookup, alertStore, notifier, a.Logger)

	a.Logger.Info().
		Str("exchange", a.Config.Chain.ExchangeAddress).
		Uint64("floor", scan.Cursor().Floor).
		Msg("starting surveillance service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("surveillance service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the historical scan job.
type BackfillOptions struct {
	FromBlock uint64
	ToBlock   uint64
	DryRun    bool
}
