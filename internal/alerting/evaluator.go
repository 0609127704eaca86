package alerting

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pricebot/internal/market"
)

const (
	// DefaultWindowSize is the number of recent prices kept per token.
	DefaultWindowSize = 10
	// DefaultMaxAlerts bounds the in-memory alert collection.
	DefaultMaxAlerts = 500
)

// DefaultThreshold is the percent move that triggers an alert.
var DefaultThreshold = decimal.NewFromInt(5)

// EvaluatorOptions tune the alert evaluator.
type EvaluatorOptions struct {
	// ThresholdPct is the alerting move in percent; nil means DefaultThreshold.
	ThresholdPct *decimal.Decimal
	WindowSize   int
	MaxAlerts    int
}

// Evaluator keeps a short price window per token and raises an alert when the
// newest price moved at least ThresholdPct percent from the one before it.
type Evaluator struct {
	mu        sync.Mutex
	windows   map[string][]market.Observation
	alerts    []market.Alert
	threshold decimal.Decimal
	seq       uint64

	windowSize int
	maxAlerts  int
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(opts EvaluatorOptions, logger zerolog.Logger) *Evaluator {
	if opts.WindowSize < 2 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	threshold := DefaultThreshold
	if opts.ThresholdPct != nil && !opts.ThresholdPct.IsNegative() {
		threshold = *opts.ThresholdPct
	}

	return &Evaluator{
		windows:    make(map[string][]market.Observation),
		threshold:  threshold,
		windowSize: opts.WindowSize,
		maxAlerts:  opts.MaxAlerts,
		logger:     logger.With().Str("component", "alert_evaluator").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
}

// RecordPrice appends (price, now) to the token's window and evaluates it.
// The returned alert is only meaningful when ok is true.
func (e *Evaluator) RecordPrice(token string, price decimal.Decimal) (alert market.Alert, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := append(e.windows[token], market.Observation{Token: token, Price: price, Timestamp: e.now()})
	if len(window) > e.windowSize {
		window = append([]market.Observation(nil), window[len(window)-e.windowSize:]...)
	}
	e.windows[token] = window

	return e.evaluate(token, window)
}

func (e *Evaluator) evaluate(token string, window []market.Observation) (market.Alert, bool) {
	if len(window) < 2 {
		return market.Alert{}, false
	}

	previous := window[len(window)-2]
	current := window[len(window)-1]
	if previous.Price.IsZero() {
		return market.Alert{}, false
	}

	change := market.PercentChange(previous.Price, current.Price)
	if change.Abs().LessThan(e.threshold) {
		return market.Alert{}, false
	}

	e.seq++
	alert := market.Alert{
		Seq:           e.seq,
		ID:            e.newID(),
		Token:         token,
		CurrentPrice:  current.Price,
		PreviousPrice: previous.Price,
		ChangePercent: change,
		Timestamp:     e.now(),
	}

	e.alerts = append(e.alerts, alert)
	if len(e.alerts) > e.maxAlerts {
		e.alerts = append([]market.Alert(nil), e.alerts[len(e.alerts)-e.maxAlerts:]...)
	}

	e.logger.Warn().
		Str("token", token).
		Str("direction", alert.Direction()).
		Str("previous", previous.Price.String()).
		Str("current", current.Price.String()).
		Str("change_pct", change.StringFixed(2)).
		Uint64("seq", alert.Seq).
		Msg("price alert triggered")

	return alert, true
}

// RecentAlerts returns stored alerts in insertion order, filtered by token when non-empty.
func (e *Evaluator) RecentAlerts(token string) []market.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]market.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if token == "" || a.Token == token {
			out = append(out, a)
		}
	}
	return out
}

// Window returns a copy of the token's current price window, oldest first.
func (e *Evaluator) Window(token string) []market.Observation {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]market.Observation(nil), e.windows[token]...)
}

// SetThreshold replaces the threshold for subsequent evaluations.
func (e *Evaluator) SetThreshold(pct decimal.Decimal) {
	e.mu.Lock()
	e.threshold = pct
	e.mu.Unlock()

	e.logger.Info().Str("threshold_pct", pct.String()).Msg("alert threshold updated")
}

// Threshold returns the active threshold percent.
func (e *Evaluator) Threshold() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}
