// Package markets resolves exchange outcome tokens to market metadata.
package markets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const marketsPath = "/markets"

// ErrNotFound indicates no market exists for the given token id.
var ErrNotFound = errors.New("markets: no market for token")

// Ref is market metadata fetched per alert decision; not retained beyond it.
type Ref struct {
	ConditionID string
	Question    string
	Slug        string
	Closed      bool
	Active      bool
}

// Lookup resolves an outcome token id to market metadata.
type Lookup interface {
	ByToken(ctx context.Context, tokenID string) (Ref, error)
}

// Options parameterise the Gamma API client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Gamma queries the Polymarket Gamma API. The token-id to market mapping it
// relies on is best-effort; the API owns the authoritative encoding.
type Gamma struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGamma constructs a Gamma market lookup.
func NewGamma(opts Options, logger zerolog.Logger) *Gamma {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://gamma-api.polymarket.com"
	}

	return &Gamma{
		opts:    opts,
		logger:  logger.With().Str("component", "market_lookup").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// ByToken fetches the market holding the given outcome token.
func (g *Gamma) ByToken(ctx context.Context, tokenID string) (Ref, error) {
	if tokenID == "" {
		return Ref{}, errors.New("token id required")
	}

	endpoint := fmt.Sprintf("%s%s?clob_token_ids=%s", g.baseURL, marketsPath, url.QueryEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Ref{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "insiderwatch/1.0")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Ref{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Ref{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return Ref{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Ref{}, parseHTTPError(resp.StatusCode, payload)
	}

	var results []gammaMarket
	if err := json.Unmarshal(payload, &results); err != nil {
		return Ref{}, fmt.Errorf("decode markets response: %w", err)
	}
	if len(results) == 0 {
		return Ref{}, ErrNotFound
	}

	m := results[0]
	return Ref{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Closed:      m.Closed,
		Active:      m.Active,
	}, nil
}

type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

type errorResponse struct {
	ErrorType   string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("gamma api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("gamma api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("gamma api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("gamma api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("gamma api error (%d)", status)
}

var _ Lookup = (*Gamma)(nil)
