package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// SessionChannel is the signal-bus channel session events are published on.
const SessionChannel = "session"

// SessionWatcher publishes the active wallet session on startup and whenever
// the signing context is replaced (key rotation, chain switch). Consumers
// subscribe to SessionChannel and re-validate affordability and signer
// identity on every event instead of trusting stale cached state.
type SessionWatcher struct {
	bus    domain.SignalBus
	logger *slog.Logger

	current domain.WalletSession
}

// NewSessionWatcher creates a watcher seeded with the given session.
func NewSessionWatcher(initial domain.WalletSession, bus domain.SignalBus, logger *slog.Logger) *SessionWatcher {
	return &SessionWatcher{
		bus:     bus,
		logger:  logger.With(slog.String("component", "session_watcher")),
		current: initial,
	}
}

// Current returns the active session value.
func (w *SessionWatcher) Current() domain.WalletSession {
	return w.current
}

// Announce publishes a SessionStarted event for the current session. Called
// once after wiring so subscribers start from a known signing context.
func (w *SessionWatcher) Announce(ctx context.Context) error {
	return w.publish(ctx, domain.SessionStarted, w.current)
}

// Replace swaps the active session and publishes the matching change event.
// The event kind distinguishes an account change from a chain change so
// consumers can invalidate exactly the state that went stale.
func (w *SessionWatcher) Replace(ctx context.Context, next domain.WalletSession) error {
	kind := domain.SessionAccountChanged
	if next.Address == w.current.Address && next.ChainID != w.current.ChainID {
		kind = domain.SessionChainChanged
	}
	w.current = next
	return w.publish(ctx, kind, next)
}

func (w *SessionWatcher) publish(ctx context.Context, kind domain.SessionEventKind, sess domain.WalletSession) error {
	evt := domain.SessionEvent{
		Kind:    kind,
		Session: sess,
		At:      time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("wallet: marshal session event: %w", err)
	}
	if err := w.bus.Publish(ctx, SessionChannel, payload); err != nil {
		return fmt.Errorf("wallet: publish session event: %w", err)
	}
	w.logger.InfoContext(ctx, "session event published",
		slog.String("kind", string(kind)),
		slog.String("address", sess.Address),
		slog.Int64("chain_id", sess.ChainID),
	)
	return nil
}
