package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"pricebot/internal/market"
)

const recentEntries = 10

// History prints the newest persisted prices for token and the total count.
func (a *App) History(ctx context.Context, token string) error {
	if err := market.ValidateToken(token, a.Config.Tokens); err != nil {
		return err
	}

	history, err := a.newFileStore().LoadPriceData(ctx, token)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintf(a.Out, "📊 No price history found for %s\n", token)
		fmt.Fprintln(a.Out, "Run the poller (pricebot run) to start collecting price data")
		return nil
	}

	recent := history
	if len(recent) > recentEntries {
		recent = recent[len(recent)-recentEntries:]
	}

	fmt.Fprintf(a.Out, "📊 Price history for %s (last %d entries):\n", token, len(recent))
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	for _, rec := range recent {
		fmt.Fprintf(writer, "   %s\t$%s\n", rec.Timestamp.Local().Format(time.DateTime), rec.Price.String())
	}
	writer.Flush()

	fmt.Fprintf(a.Out, "\nTotal entries: %d\n", len(history))
	return nil
}
