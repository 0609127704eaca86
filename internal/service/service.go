package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"pricebot/internal/alerting"
	"pricebot/internal/fetcher"
	"pricebot/internal/market"
	"pricebot/internal/scheduler"
	"pricebot/internal/storage"
)

// Deps lists the collaborators of the polling service. Archive, Locker and
// Notifier are optional.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetcher   fetcher.PriceFetcher
	History   storage.HistoryStore
	Alerts    storage.AlertLog
	Archive   storage.Archive
	Locker    storage.AdvisoryLocker
	Evaluator *alerting.Evaluator
	Notifier  alerting.Notifier
	Out       io.Writer
	Logger    zerolog.Logger
}

// Service orchestrates fetching, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.PriceFetcher
	history   storage.HistoryStore
	alerts    storage.AlertLog
	archive   storage.Archive
	locker    storage.AdvisoryLocker
	evaluator *alerting.Evaluator
	notifier  alerting.Notifier
	out       io.Writer
	logger    zerolog.Logger

	tokens  []string
	lockKey int64
}

// New constructs the polling service for tokens.
func New(tokens []string, lockKey int64, deps Deps) *Service {
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	return &Service{
		scheduler: deps.Scheduler,
		fetcher:   deps.Fetcher,
		history:   deps.History,
		alerts:    deps.Alerts,
		archive:   deps.Archive,
		locker:    deps.Locker,
		evaluator: deps.Evaluator,
		notifier:  deps.Notifier,
		out:       out,
		logger:    deps.Logger.With().Str("component", "service").Logger(),
		tokens:    append([]string(nil), tokens...),
		lockKey:   lockKey,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick runs one fetch → display → persist → alert cycle.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	results := s.fetcher.GetPrices(ctx, s.tokens)

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
			fmt.Fprintf(s.out, "❌ %s: Error - %v\n", res.Token, res.Err)
			s.logger.Error().Err(res.Err).Str("token", res.Token).Msg("price fetch failed")
			continue
		}
		fmt.Fprintf(s.out, "💰 %s: $%s\n", res.Token, res.Price.String())
		s.process(ctx, market.Observation{Token: res.Token, Price: res.Price, Timestamp: res.Timestamp})
	}

	s.logger.Info().Time("tick", at).
		Int("tokens", len(results)).
		Int("failed", failed).
		Msg("tick processed")

	if failed == len(results) && len(results) > 0 {
		return fmt.Errorf("all %d price fetches failed", failed)
	}
	return nil
}

func (s *Service) process(ctx context.Context, obs market.Observation) {
	if s.history != nil {
		record := storage.PriceRecord{Price: obs.Price, Timestamp: obs.Timestamp}
		if err := s.history.SavePriceData(ctx, obs.Token, record); err != nil {
			s.logger.Error().Err(err).Str("token", obs.Token).Msg("failed to save price data")
		}
	}
	if s.archive != nil {
		if err := s.archive.InsertObservation(ctx, obs); err != nil {
			s.logger.Error().Err(err).Str("token", obs.Token).Msg("failed to archive observation")
		}
	}

	if s.evaluator == nil {
		return
	}
	alert, triggered := s.evaluator.RecordPrice(obs.Token, obs.Price)
	if !triggered {
		return
	}

	if s.alerts != nil {
		if err := s.alerts.SaveAlertData(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("token", alert.Token).Msg("failed to persist alert")
		}
	}
	if s.archive != nil {
		if err := s.archive.InsertAlert(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("token", alert.Token).Msg("failed to archive alert")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("token", alert.Token).Msg("failed to dispatch alert")
		}
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
