package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"insider-alerts/internal/markets"
	"insider-alerts/internal/wallet"
)

// Notification 封装一次可疑交易告警的上下文。
type Notification struct {
	Market      markets.Ref
	Amount      decimal.Decimal
	Outcome     string
	Wallet      common.Address
	WalletAge   wallet.Record
	OrderHash   string
	BlockNumber uint64
	Timestamp   time.Time
}

// Notifier 定义告警输送接口。Delivery is best effort; the surveillance loop
// never consumes an acknowledgement.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("wallet", note.Wallet.Hex()).
		Str("market", note.Market.Slug).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[New-Wallet Whale Alert]\n")
	builder.WriteString(fmt.Sprintf("Market: %s\n", note.Market.Question))
	builder.WriteString(fmt.Sprintf("Amount: $%s on %s\n", note.Amount.StringFixed(2), note.Outcome))
	builder.WriteString(fmt.Sprintf("Wallet: %s\n", note.Wallet.Hex()))
	builder.WriteString(fmt.Sprintf("Wallet age: %s\n", DescribeAge(note.WalletAge)))
	builder.WriteString(fmt.Sprintf("Block: %d\n", note.BlockNumber))
	if note.OrderHash != "" {
		builder.WriteString(fmt.Sprintf("Order: %s\n", note.OrderHash))
	}
	if note.Market.Slug != "" {
		builder.WriteString(fmt.Sprintf("https://polymarket.com/event/%s\n", note.Market.Slug))
	}
	return builder.String()
}

// DescribeAge renders a wallet age record for humans, flagging the
// fail-open case explicitly.
func DescribeAge(record wallet.Record) string {
	switch record.Confidence {
	case wallet.ConfidenceUnknown:
		return "unknown (treated as new)"
	case wallet.ConfidenceExact:
		return fmt.Sprintf("%d days", record.AgeDays)
	default:
		return fmt.Sprintf("~%d days (heuristic)", record.AgeDays)
	}
}

var _ Notifier = (*TelegramNotifier)(nil)
