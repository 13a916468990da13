package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const discordEmbedColor = 0xE74C3C

// DiscordNotifier posts alert embeds to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a Discord webhook notifier.
func NewDiscordNotifier(webhookURL, username string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if username == "" {
		username = "insiderwatch"
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notify posts a single embed describing the suspicious fill.
func (n *DiscordNotifier) Notify(ctx context.Context, note Notification) error {
	if n.webhookURL == "" {
		return errors.New("discord webhook url not configured")
	}

	embed := discordEmbed{
		Title: "🚨 Large trade from a new wallet",
		Color: discordEmbedColor,
		Fields: []discordField{
			{Name: "Market", Value: note.Market.Question},
			{Name: "Amount", Value: fmt.Sprintf("$%s", note.Amount.StringFixed(2)), Inline: true},
			{Name: "Outcome", Value: note.Outcome, Inline: true},
			{Name: "Wallet", Value: note.Wallet.Hex()},
			{Name: "Wallet age", Value: DescribeAge(note.WalletAge), Inline: true},
			{Name: "Block", Value: fmt.Sprintf("%d", note.BlockNumber), Inline: true},
		},
	}
	if note.Market.Slug != "" {
		embed.URL = "https://polymarket.com/event/" + note.Market.Slug
	}
	if !note.Timestamp.IsZero() {
		embed.Timestamp = note.Timestamp.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(discordPayload{Username: n.username, Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("wallet", note.Wallet.Hex()).
		Str("market", note.Market.Slug).
		Msg("alert dispatched (Discord)")
	return nil
}

var _ Notifier = (*DiscordNotifier)(nil)
