package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTokens lists the CoinGecko ids tracked out of the box.
var DefaultTokens = []string{"bitcoin", "ethereum", "solana"}

// Observation is a single price reading for a token.
type Observation struct {
	Token     string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Alert is raised when two consecutive observations move past the threshold.
type Alert struct {
	Seq           uint64          `json:"seq"`
	ID            string          `json:"id"`
	Token         string          `json:"token"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	PreviousPrice decimal.Decimal `json:"previousPrice"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Key identifies the alert within a process run. Seq restarts with the process,
// so ID is the identity that stays unique across persisted alerts.
func (a Alert) Key() string {
	return fmt.Sprintf("%s_%d", a.Token, a.Seq)
}

// Direction classifies the move as up, down or flat.
func (a Alert) Direction() string {
	switch a.ChangePercent.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// ValidationError reports bad user input at the command boundary.
type ValidationError struct {
	Token   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Token == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Token)
}

// ValidateToken checks token against the supported list.
func ValidateToken(token string, supported []string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &ValidationError{Message: "please specify a token"}
	}
	for _, s := range supported {
		if s == token {
			return nil
		}
	}
	return &ValidationError{Token: token, Message: "unsupported token"}
}

// PercentChange returns (current - previous) / previous * 100.
func PercentChange(previous, current decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}
