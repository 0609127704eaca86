package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"pricebot/internal/alerting"
	"pricebot/internal/config"
	"pricebot/internal/fetcher"
	"pricebot/internal/scheduler"
	"pricebot/internal/service"
	"pricebot/internal/storage"
	"pricebot/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
	Fs     afero.Fs
}

// NewApp constructs a new application handle writing command output to stdout.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		Fs:     afero.NewOsFs(),
	}
}

func (a *App) newFetcher() fetcher.PriceFetcher {
	fc := a.Config.Fetcher
	if fc.Source == "chainlink" {
		return fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:  fc.Chainlink.RPCURL,
			Feeds:   fc.Chainlink.Feeds,
			Timeout: fc.RequestTimeout,
		}, a.Logger)
	}
	userAgent := fc.CoinGecko.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:   fc.CoinGecko.BaseURL,
		APIKey:    fc.CoinGecko.APIKey,
		Timeout:   fc.RequestTimeout,
		UserAgent: userAgent,
	}, a.Logger)
}

func (a *App) newFileStore() *storage.FileStore {
	return storage.NewFileStore(a.Fs, storage.FileStoreOptions{
		Dir:        a.Config.Storage.DataDir,
		MaxHistory: a.Config.Storage.MaxHistory,
		MaxAlerts:  a.Config.Storage.MaxAlerts,
	}, a.Logger)
}

func (a *App) newEvaluator() *alerting.Evaluator {
	threshold := decimal.NewFromFloat(a.Config.Alerting.ThresholdPct)
	return alerting.NewEvaluator(alerting.EvaluatorOptions{
		ThresholdPct: &threshold,
		WindowSize:   a.Config.Alerting.WindowSize,
		MaxAlerts:    a.Config.Alerting.MaxRecent,
	}, a.Logger)
}

func (a *App) newNotifier() *alerting.MultiNotifier {
	var notifiers []alerting.Notifier
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case "log", "console":
			notifiers = append(notifiers, alerting.NewConsoleNotifier(a.Out))
		case "telegram":
			// enabled separately below
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	if tg := a.Config.Alerting.Telegram; tg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger))
	}
	return alerting.NewMultiNotifier(notifiers...)
}

func (a *App) openArchive(ctx context.Context) (*storage.PGArchive, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	archive := storage.NewPGArchive(pool)
	if err := archive.EnsureSchema(ctx); err != nil {
		archive.Close()
		return nil, nil, err
	}
	return archive, archive.Close, nil
}

// Run executes the long-running polling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := a.newFileStore()
	if err := store.Init(); err != nil {
		return err
	}

	deps := service.Deps{
		Fetcher:   a.newFetcher(),
		History:   store,
		Alerts:    store,
		Evaluator: a.newEvaluator(),
		Out:       a.Out,
		Logger:    a.Logger,
	}
	if notifier := a.newNotifier(); notifier.Len() > 0 {
		deps.Notifier = notifier
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	if archive != nil {
		deps.Archive = archive
		deps.Locker = archive
		defer closeArchive()
	} else {
		a.Logger.Debug().Msg("database.dsn not configured; postgres archive disabled")
	}

	deps.Scheduler = scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		TickTimeout:  a.Config.Scheduler.TickTimeout,
	}, a.Logger)

	svc := service.New(a.Config.Tokens, a.Config.Scheduler.AdvisoryLockKey, deps)

	a.Logger.Info().
		Strs("tokens", a.Config.Tokens).
		Dur("interval", a.Config.Scheduler.Interval).
		Float64("threshold_pct", a.Config.Alerting.ThresholdPct).
		Str("source", a.Config.Fetcher.Source).
		Msg("starting price poller")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("poller terminated with error")
		return err
	}

	a.Logger.Info().Msg("price poller stopped")
	return nil
}

// ExportOptions hold parameters for exporting a token's history.
type ExportOptions struct {
	Token     string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
