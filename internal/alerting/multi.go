package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// Multi fans a notification out to every configured channel. Per-channel
// failures are logged and folded into a single returned error; one flaky
// channel never blocks the others.
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alert_multi").Logger(),
	}
}

// Notify delivers to all channels, returning the last failure if any.
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Msg("channel delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

var _ Notifier = (*Multi)(nil)
