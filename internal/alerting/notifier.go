package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pricebot/internal/market"
)

// Notifier delivers a triggered alert somewhere.
type Notifier interface {
	Notify(ctx context.Context, alert market.Alert) error
}

// ConsoleNotifier prints alerts for a human watching the process.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier writes alerts to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

// Notify prints a two-line alert.
func (n *ConsoleNotifier) Notify(_ context.Context, alert market.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, err := fmt.Fprintf(n.out, "🚨 %s PRICE ALERT: %s moved %s%%\n   Previous: $%s → Current: $%s\n",
		DirectionIcon(alert),
		strings.ToUpper(alert.Token),
		alert.ChangePercent.StringFixed(2),
		alert.PreviousPrice.String(),
		alert.CurrentPrice.String(),
	)
	return err
}

// DirectionIcon returns a chart glyph for the alert direction.
func DirectionIcon(alert market.Alert) string {
	if alert.ChangePercent.IsPositive() {
		return "📈"
	}
	return "📉"
}

// MultiNotifier fans an alert out to several notifiers concurrently.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier groups notifiers; nil entries are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Len reports how many notifiers are attached.
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// Notify delivers to every notifier and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, alert market.Alert) error {
	errs := make([]error, len(m.notifiers))

	var wg sync.WaitGroup
	for i, n := range m.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			errs[i] = n.Notify(ctx, alert)
		}(i, n)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered alert.
func (n *TelegramNotifier) Notify(ctx context.Context, alert market.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("token", alert.Token).
		Str("direction", alert.Direction()).
		Uint64("seq", alert.Seq).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(alert market.Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s [%s Price Alert]\n", DirectionIcon(alert), strings.ToUpper(alert.Token)))
	builder.WriteString(fmt.Sprintf("Change: %s%%\n", alert.ChangePercent.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Previous: $%s\n", alert.PreviousPrice.String()))
	builder.WriteString(fmt.Sprintf("Current: $%s\n", alert.CurrentPrice.String()))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.Timestamp.UTC().Format(time.RFC3339)))
	return builder.String()
}

var (
	_ Notifier = (*ConsoleNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
