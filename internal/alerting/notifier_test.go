package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"insider-alerts/internal/markets"
	"insider-alerts/internal/wallet"
)

func testNotification() Notification {
	return Notification{
		Market: markets.Ref{
			Question: "Will it rain tomorrow?",
			Slug:     "will-it-rain",
			Active:   true,
		},
		Amount:  decimal.NewFromInt(50_000),
		Outcome: "Yes",
		Wallet:  common.HexToAddress("0xabc0000000000000000000000000000000000001"),
		WalletAge: wallet.Record{
			AgeDays:    0,
			IsNew:      true,
			Confidence: wallet.ConfidenceHeuristic,
		},
		BlockNumber: 42,
		Timestamp:   time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Will it rain tomorrow?") {
		t.Fatalf("text 应包含市场问题: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestDiscordNotifierSuccess(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode discord payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, "insiderwatch", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Discord Notify should succeed: %v", err)
	}

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected a single embed, got %d", len(payload.Embeds))
	}
	if payload.Embeds[0].URL != "https://polymarket.com/event/will-it-rain" {
		t.Fatalf("unexpected embed url: %s", payload.Embeds[0].URL)
	}
}

func TestDiscordNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, "", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("429 should surface an error")
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(ctx context.Context, note Notification) error {
	f.calls++
	return errors.New("down")
}

type okNotifier struct{ calls int }

func (o *okNotifier) Notify(ctx context.Context, note Notification) error {
	o.calls++
	return nil
}

func TestMultiDeliversToAllChannels(t *testing.T) {
	bad := &failingNotifier{}
	good := &okNotifier{}

	multi := NewMulti(testLogger(), bad, good)
	err := multi.Notify(context.Background(), testNotification())

	if err == nil {
		t.Fatal("failure on one channel should be reported")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("all channels should be attempted: bad=%d good=%d", bad.calls, good.calls)
	}
}

func TestDescribeAgeUnknown(t *testing.T) {
	desc := DescribeAge(wallet.Record{Confidence: wallet.ConfidenceUnknown})
	if !strings.Contains(desc, "unknown") {
		t.Fatalf("unknown confidence should be flagged: %q", desc)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
