package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// eventTitles maps lifecycle event names to alert titles. Events without an
// entry fall back to the raw event name.
var eventTitles = map[string]string{
	"order_created":        "Order created",
	"order_resting":        "Order resting",
	"order_matched":        "Order matched",
	"settlement_waiting":   "Settlement waiting on counterparty",
	"settlement_confirmed": "Settlement confirmed",
	"settlement_failed":    "Settlement failed",
	"position_minted":      "Position minted",
	"mint_failed":          "Mint failed",
}

// Watcher subscribes to lifecycle event channels and forwards each event to
// the Notifier, which applies its own event filter.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher reading from the given bus.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes events from the named channels until the context is cancelled.
func (w *Watcher) Run(ctx context.Context, channels ...string) error {
	merged := make(chan []byte, 128)
	for _, channel := range channels {
		sub, err := w.bus.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", channel, err)
		}
		go func() {
			for payload := range sub {
				select {
				case merged <- payload:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-merged:
			w.handle(ctx, payload)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, payload []byte) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		w.logger.WarnContext(ctx, "malformed event payload",
			slog.String("error", err.Error()),
		)
		return
	}

	event, _ := fields["event"].(string)
	if event == "" {
		return
	}

	title := eventTitles[event]
	if title == "" {
		title = event
	}

	if err := w.notifier.Notify(ctx, event, title, formatDetail(fields)); err != nil {
		w.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// formatDetail renders the event fields as "key: value" lines in stable
// order, skipping the event name itself.
func formatDetail(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "event" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, fields[k]))
	}
	return strings.Join(lines, "\n")
}
