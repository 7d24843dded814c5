package s3blob

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

type fakeSettleStore struct {
	settlements []domain.Settlement
}

func (f *fakeSettleStore) ListBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, s := range f.settlements {
		if s.CreatedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type fakeAuditStore struct {
	entries []domain.AuditEntry
	logged  []string
}

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.logged = append(f.logged, event)
	return nil
}

func (f *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

func (f *fakeAuditStore) ListBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range f.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func TestArchiveSettlements(t *testing.T) {
	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	settle := &fakeSettleStore{settlements: []domain.Settlement{
		{ID: "old-1", State: domain.SettlementConfirmed, CreatedAt: cutoff.AddDate(0, -2, 0)},
		{ID: "old-2", State: domain.SettlementReverted, CreatedAt: cutoff.AddDate(0, -1, 0)},
		{ID: "fresh", State: domain.SettlementConfirmed, CreatedAt: cutoff.AddDate(0, 1, 0)},
	}}
	audit := &fakeAuditStore{}
	w := newMemWriter()

	arch := NewArchiver(w, settle, audit, audit)
	count, err := arch.ArchiveSettlements(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveSettlements: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	key := "archive/settlements/2026-07.jsonl"
	data, ok := w.objects[key]
	if !ok {
		t.Fatalf("expected object at %s, have %v", key, w.objects)
	}
	if w.types[key] != "application/x-ndjson" {
		t.Errorf("content type = %q", w.types[key])
	}
	lines := bytes.Count(bytes.TrimRight(data, "\n"), []byte("\n")) + 1
	if lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
	if !strings.Contains(string(data), "old-1") || strings.Contains(string(data), "fresh") {
		t.Error("archive should hold only records before the cutoff")
	}
	if len(audit.logged) != 1 || audit.logged[0] != "archive.settlements" {
		t.Errorf("audit events = %v", audit.logged)
	}
}

func TestArchiveSettlementsEmptyIsNoOp(t *testing.T) {
	w := newMemWriter()
	audit := &fakeAuditStore{}
	arch := NewArchiver(w, &fakeSettleStore{}, audit, audit)

	count, err := arch.ArchiveSettlements(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveSettlements: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(w.objects) != 0 {
		t.Error("no object should be written for an empty result")
	}
	if len(audit.logged) != 0 {
		t.Error("no audit entry should be written for an empty result")
	}
}

func TestArchiveAuditLog(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	audit := &fakeAuditStore{entries: []domain.AuditEntry{
		{ID: 1, Event: "order_resting", CreatedAt: cutoff.AddDate(0, -1, 0)},
		{ID: 2, Event: "settlement_confirmed", CreatedAt: cutoff.AddDate(0, 0, 10)},
	}}
	w := newMemWriter()
	arch := NewArchiver(w, &fakeSettleStore{}, audit, audit)

	count, err := arch.ArchiveAuditLog(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveAuditLog: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if _, ok := w.objects["archive/audit/2026-08.jsonl"]; !ok {
		t.Errorf("missing archive object, have %v", w.objects)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"127.0.0.1:9000", false, "http://127.0.0.1:9000"},
		{"127.0.0.1:9000", true, "https://127.0.0.1:9000"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.endpoint, tc.useSSL); got != tc.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tc.endpoint, tc.useSSL, got, tc.want)
		}
	}
}
