package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a successful price lookup.
type Quote struct {
	Token     string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Result is one entry of a batch lookup: either Quote fields or Err is set.
type Result struct {
	Token     string
	Price     decimal.Decimal
	Timestamp time.Time
	Err       error
}

// OK reports whether the lookup succeeded.
func (r Result) OK() bool { return r.Err == nil }

// PriceFetcher retrieves USD prices for tokens.
type PriceFetcher interface {
	GetPrice(ctx context.Context, token string) (Quote, error)
	GetPrices(ctx context.Context, tokens []string) []Result
}

// FetchError is returned when a single token lookup fails.
type FetchError struct {
	Token   string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Token, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Token, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// getFunc is the per-token lookup used by fetchAll.
type getFunc func(ctx context.Context, token string) (Quote, error)

// fetchAll runs get for every token concurrently, each under its own timeout,
// and returns results in input order. A failure never affects other tokens.
func fetchAll(ctx context.Context, tokens []string, timeout time.Duration, get getFunc) []Result {
	results := make([]Result, len(tokens))

	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()

			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			quote, err := get(callCtx, token)
			if err != nil {
				results[i] = Result{Token: token, Err: err, Timestamp: time.Now().UTC()}
				return
			}
			results[i] = Result{Token: quote.Token, Price: quote.Price, Timestamp: quote.Timestamp}
		}(i, token)
	}
	wg.Wait()

	return results
}
