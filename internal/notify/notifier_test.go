package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type recordSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordSender{name: "a"}
	b := &recordSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	if err := n.Notify(context.Background(), "settlement_confirmed", "Confirmed", "details"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.titles) != 1 || len(b.titles) != 1 {
		t.Errorf("both senders should receive the alert, got %d/%d", len(a.titles), len(b.titles))
	}
}

func TestNotifyFiltersDisallowedEvents(t *testing.T) {
	s := &recordSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"settlement_confirmed"}, discardLogger())

	if err := n.Notify(context.Background(), "order_created", "Created", ""); err != nil {
		t.Fatalf("filtered event should not error: %v", err)
	}
	if len(s.titles) != 0 {
		t.Error("filtered event should not be delivered")
	}

	if err := n.Notify(context.Background(), "settlement_confirmed", "Confirmed", ""); err != nil {
		t.Fatalf("allowed event: %v", err)
	}
	if len(s.titles) != 1 {
		t.Error("allowed event should be delivered")
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	s := &recordSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"settlement_confirmed"}, discardLogger())

	if err := n.NotifyAll(context.Background(), "Anything", ""); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(s.titles) != 1 {
		t.Error("NotifyAll should always deliver")
	}
}

func TestDispatchCollectsSenderFailures(t *testing.T) {
	broken := &recordSender{name: "broken", err: errors.New("http 500")}
	ok := &recordSender{name: "ok"}
	n := NewNotifier([]Sender{broken, ok}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "Title", "body")
	if err == nil {
		t.Fatal("expected combined error from the broken sender")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the failed sender: %v", err)
	}
	if len(ok.titles) != 1 {
		t.Error("healthy sender should still deliver despite the broken one")
	}
}

func TestNoSendersIsANoOp(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if err := n.NotifyAll(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("no senders should be fine: %v", err)
	}
}

func TestFormatDetailStableOrder(t *testing.T) {
	got := formatDetail(map[string]any{
		"event":    "order_matched",
		"order_id": "abc",
		"amount":   "100",
	})
	want := "amount: 100\norder_id: abc"
	if got != want {
		t.Errorf("formatDetail = %q, want %q", got, want)
	}
}
