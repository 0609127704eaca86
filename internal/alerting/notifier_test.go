package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pricebot/internal/market"
)

func sampleAlert() market.Alert {
	return market.Alert{
		Seq:           1,
		ID:            "test",
		Token:         "bitcoin",
		CurrentPrice:  decimal.NewFromInt(106),
		PreviousPrice: decimal.NewFromInt(100),
		ChangePercent: decimal.NewFromInt(6),
		Timestamp:     time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Telegram Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "BITCOIN") || !strings.Contains(received["text"], "6.00%") {
		t.Fatalf("text should describe the alert, got %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestConsoleNotifierFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleNotifier(&buf).Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "PRICE ALERT: BITCOIN moved 6.00%") || !strings.Contains(out, "Previous: $100 → Current: $106") {
		t.Fatalf("unexpected console output %q", out)
	}
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) Notify(context.Context, market.Alert) error {
	f.calls++
	return f.err
}

func TestMultiNotifierDeliversToAll(t *testing.T) {
	ok := &fakeNotifier{}
	failing := &fakeNotifier{err: errors.New("boom")}
	multi := NewMultiNotifier(ok, nil, failing)

	if multi.Len() != 2 {
		t.Fatalf("nil notifiers should be skipped, got %d", multi.Len())
	}
	err := multi.Notify(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("every notifier should be called once, got %d/%d", ok.calls, failing.calls)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
