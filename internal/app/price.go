package app

import (
	"context"
	"fmt"
	"time"

	"pricebot/internal/market"
)

// Price prints the current price of token, or of every supported token when empty.
func (a *App) Price(ctx context.Context, token string) error {
	f := a.newFetcher()

	if token != "" {
		if err := market.ValidateToken(token, a.Config.Tokens); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Fetching current price for %s...\n", token)
		quote, err := f.GetPrice(ctx, token)
		if err != nil {
			a.printLastKnown(ctx, token)
			return err
		}
		fmt.Fprintf(a.Out, "💰 %s: $%s\n", quote.Token, quote.Price.String())
		return nil
	}

	fmt.Fprintln(a.Out, "Fetching current prices for all tokens...")
	for _, res := range f.GetPrices(ctx, a.Config.Tokens) {
		if !res.OK() {
			fmt.Fprintf(a.Out, "❌ %s: Error - %v\n", res.Token, res.Err)
			continue
		}
		fmt.Fprintf(a.Out, "💰 %s: $%s\n", res.Token, res.Price.String())
	}
	return nil
}

func (a *App) printLastKnown(ctx context.Context, token string) {
	last, ok, err := a.newFileStore().LastPrice(ctx, token)
	if err != nil || !ok {
		return
	}
	fmt.Fprintf(a.Out, "Last recorded price for %s: $%s at %s\n",
		token, last.Price.String(), last.Timestamp.Local().Format(time.DateTime))
}
