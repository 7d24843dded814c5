package venue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/outcomelab/tradeflow/internal/domain"
)

func signedOrder() domain.Order {
	return domain.Order{
		ID:          "order-1",
		MarketID:    "market-1",
		QuestionID:  "question-1",
		Maker:       "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Side:        domain.OrderSideBuy,
		Outcome:     domain.OutcomeYes,
		PriceTicks:  600_000,
		AmountTicks: 100_000_000,
		Salt:        "12345",
		Nonce:       1,
		Expiration:  4_000_000_000,
		Signature:   "0xdeadbeef",
	}
}

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url}, slog.New(slog.DiscardHandler))
}

func TestSubmitAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload orderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Price != "0.6" || payload.Amount != "100" {
			t.Errorf("price/amount on wire = %q/%q, want 0.6/100", payload.Price, payload.Amount)
		}
		json.NewEncoder(w).Encode(submitResponse{Success: true, Matched: false})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), signedOrder())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != domain.SubmitAccepted {
		t.Errorf("Outcome = %v, want accepted", result.Outcome)
	}
	if result.Fill != nil {
		t.Error("accepted result must carry no fill")
	}
}

func TestSubmitMatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{
			Success: true,
			Matched: true,
			OnChainExecution: &onChainExecution{
				FillAmount:     "100",
				MakerSignature: "0xmakersig",
				MakerOrder: orderPayload{
					OrderID: "maker-1",
					Maker:   "0x1111111111111111111111111111111111111111",
					Side:    "sell",
					Outcome: 0,
					Price:   "0.6",
					Amount:  "100",
				},
				CTFOrder: ctfOrderPayload{
					Salt:        "99",
					Maker:       "0x1111111111111111111111111111111111111111",
					Signer:      "0x1111111111111111111111111111111111111111",
					TokenID:     "123456789",
					MakerAmount: "100000000",
					TakerAmount: "60000000",
					Side:        1,
				},
			},
		})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), signedOrder())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != domain.SubmitMatched {
		t.Fatalf("Outcome = %v, want matched", result.Outcome)
	}
	fill := result.Fill
	if fill == nil {
		t.Fatal("matched result missing fill")
	}
	if fill.MakerOrder.ID != "maker-1" {
		t.Errorf("MakerOrder.ID = %q", fill.MakerOrder.ID)
	}
	if fill.FillAmountTicks != 100_000_000 {
		t.Errorf("FillAmountTicks = %d, want 100_000_000", fill.FillAmountTicks)
	}
	if fill.MakerSignature != "0xmakersig" {
		t.Errorf("MakerSignature = %q", fill.MakerSignature)
	}
	if fill.CTFOrder.TokenID.String() != "123456789" {
		t.Errorf("TokenID = %s", fill.CTFOrder.TokenID)
	}
	if fill.TakerOrder.ID != "order-1" {
		t.Errorf("TakerOrder.ID = %q, want the submitted order", fill.TakerOrder.ID)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error is retryable venue unavailability", http.StatusBadGateway, "", domain.ErrVenueUnavailable},
		{"bad signature is a terminal rejection", http.StatusBadRequest, `{"error":"invalid signature"}`, domain.ErrRejectedByVenue},
		{"throttled", http.StatusTooManyRequests, "", domain.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Submit(context.Background(), signedOrder())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).Submit(context.Background(), signedOrder())
	if !errors.Is(err, domain.ErrVenueUnavailable) {
		t.Fatalf("err = %v, want ErrVenueUnavailable", err)
	}
}

func TestSubmitRejectsUnsignedOrder(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	order := signedOrder()
	order.Signature = ""
	_, err := newTestClient(srv.URL).Submit(context.Background(), order)
	if !errors.Is(err, domain.ErrInvalidOrderParams) {
		t.Fatalf("err = %v, want ErrInvalidOrderParams", err)
	}
	if called {
		t.Error("unsigned order must not reach the network")
	}
}

func TestBackfillSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/orders/maker-1/signature" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var patch signaturePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if patch.Signature != "0xsig" {
			t.Errorf("Signature = %q, want 0xsig", patch.Signature)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).BackfillSignature(context.Background(), "maker-1", "0xsig"); err != nil {
		t.Fatalf("BackfillSignature: %v", err)
	}
}

func TestAuthHeaders(t *testing.T) {
	auth := HMACAuth{Key: "key", Secret: "c2VjcmV0", Passphrase: "pass"}
	headers := auth.HeadersAt(http.MethodPost, "/orders", `{"a":1}`, 1_700_000_000)

	if headers["VENUE_API_KEY"] != "key" {
		t.Errorf("VENUE_API_KEY = %q", headers["VENUE_API_KEY"])
	}
	if headers["VENUE_TIMESTAMP"] != "1700000000" {
		t.Errorf("VENUE_TIMESTAMP = %q", headers["VENUE_TIMESTAMP"])
	}
	if headers["VENUE_SIGNATURE"] == "" {
		t.Error("VENUE_SIGNATURE is empty")
	}
	// Same inputs must sign identically.
	again := auth.HeadersAt(http.MethodPost, "/orders", `{"a":1}`, 1_700_000_000)
	if headers["VENUE_SIGNATURE"] != again["VENUE_SIGNATURE"] {
		t.Error("signature not deterministic for fixed timestamp")
	}
}
