package data

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMassiveProvider_GetBars_HTTPError(t *testing.T) {
	// fake server returning 500
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal error"}`))
	}))
	defer srv.Close()

	p := &massiveDataProvider{
		APIKey:  "test",
		Client:  srv.Client(),
		BaseURL: srv.URL, // IMPORTANT
	}

	start := time.Now().AddDate(0, 0, -5)
	end := time.Now()

	_, err := p.GetBars("AAPL", start, end, 1, "day")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMassiveProvider_Pagination(t *testing.T) {
	callCount := 0

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++

		if callCount == 1 {
			w.Write([]byte(`{
				"results": [
					{"t": 1735689600000, "o":1,"h":1,"l":1,"c":1,"v":100}
				],
				"next_url": "` + srv.URL + `/page2"
			}`))
			return
		}

		w.Write([]byte(`{
				"results": [
					{"t": 1735776000000, "o":1,"h":1,"l":1,"c":1,"v":100}
				]
			}`))
	}))
	defer srv.Close()

	p := &massiveDataProvider{
		APIKey:  "test",
		Client:  srv.Client(),
		BaseURL: srv.URL,
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	bars, err := p.GetBars("AAPL", start, end, 1, "day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// GetBars itself doesn't paginate (GetContracts does); a single request
	// only ever sees the first page's results.
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
}

func TestMassiveRoundToNearestStrike_NoContractsFallsBackToAsOfPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	p := &massiveDataProvider{
		APIKey:  "test",
		Client:  srv.Client(),
		BaseURL: srv.URL,
	}

	expiry := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	open := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)
	actual := p.RoundToNearestStrike("SPY", expiry, open, 581.39)
	if actual != 581.39 {
		t.Fatalf("expected fallback to asOfPrice 581.39, got %f", actual)
	}
}

func TestMassiveRoundToNearestStrike_PicksClosestStrike(t *testing.T) {
	expiry := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	open := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [
			{"strike_price": 575, "expiration_date": "2025-01-17", "contract_type": "call"},
			{"strike_price": 580, "expiration_date": "2025-01-17", "contract_type": "call"},
			{"strike_price": 585, "expiration_date": "2025-01-17", "contract_type": "call"}
		]}`))
	}))
	defer srv.Close()

	p := &massiveDataProvider{
		APIKey:  "test",
		Client:  srv.Client(),
		BaseURL: srv.URL,
	}

	actual := p.RoundToNearestStrike("SPY", expiry, open, 581.39)
	if actual != 580.0 {
		t.Fatalf("expected closest strike 580.0, got %f", actual)
	}
}
