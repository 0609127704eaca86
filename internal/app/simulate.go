package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pricebot/internal/market"
)

// SimulateAlert feeds previous then current through a fresh evaluator and,
// when the move crosses the threshold, dispatches the alert through the
// configured channels. Nothing is persisted.
func (a *App) SimulateAlert(ctx context.Context, token string, previous, current decimal.Decimal) error {
	if err := market.ValidateToken(token, a.Config.Tokens); err != nil {
		return err
	}
	if !previous.IsPositive() || !current.IsPositive() {
		return errors.New("--previous and --current must be greater than 0")
	}

	evaluator := a.newEvaluator()
	evaluator.RecordPrice(token, previous)
	alert, triggered := evaluator.RecordPrice(token, current)
	if !triggered {
		fmt.Fprintf(a.Out, "No alert: %s moved %s%%, threshold is %s%%\n",
			token,
			market.PercentChange(previous, current).StringFixed(2),
			evaluator.Threshold().String(),
		)
		return nil
	}

	notifier := a.newNotifier()
	if notifier.Len() == 0 {
		return errors.New("no alert channels configured")
	}
	return notifier.Notify(ctx, alert)
}
