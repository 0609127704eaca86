package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"pricebot/internal/alerting"
	"pricebot/internal/market"
)

// AlertsOptions select where recent alerts are read from.
type AlertsOptions struct {
	// FromArchive reads the Postgres archive instead of alerts.json.
	FromArchive bool
	Limit       int
}

// Alerts prints the newest persisted alerts, oldest first.
func (a *App) Alerts(ctx context.Context, opts AlertsOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = recentEntries
	}

	var (
		alerts []market.Alert
		err    error
	)
	if opts.FromArchive {
		alerts, err = a.archivedAlerts(ctx, opts.Limit)
	} else {
		alerts, err = a.newFileStore().LoadAlertData(ctx)
	}
	if err != nil {
		return err
	}

	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "🔔 No alerts found")
		fmt.Fprintln(a.Out, "Run the poller (pricebot run) to start monitoring for price alerts")
		return nil
	}

	recent := alerts
	if len(recent) > opts.Limit {
		recent = recent[len(recent)-opts.Limit:]
	}

	fmt.Fprintf(a.Out, "🔔 Recent alerts (last %d):\n", len(recent))
	for _, alert := range recent {
		fmt.Fprintf(a.Out, "   %s: %s %s %s%% ($%s → $%s)\n",
			alert.Timestamp.Local().Format(time.DateTime),
			alerting.DirectionIcon(alert),
			alert.Token,
			alert.ChangePercent.StringFixed(2),
			alert.PreviousPrice.String(),
			alert.CurrentPrice.String(),
		)
	}
	return nil
}

func (a *App) archivedAlerts(ctx context.Context, limit int) ([]market.Alert, error) {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, errors.New("database.dsn not configured; cannot read archived alerts")
	}
	defer closeArchive()

	alerts, err := archive.ListRecentAlerts(ctx, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(alerts)
	return alerts, nil
}
