package oracle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type feedFunc func() (RoundData, error)

func (f feedFunc) LatestRound() (RoundData, error) { return f() }

func e18(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func TestAdapterValueScaling(t *testing.T) {
	feed := NewManualFeed()
	feed.SetUSD(2000, time.Now())
	adapter, err := NewAdapter("WETH", feed)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	// 15e18 units at 2000 USD must value at 3.0e22.
	value, err := adapter.ValueInUSD(e18(15))
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	expected := new(big.Int).Mul(e18(15), big.NewInt(2000))
	if value.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, value)
	}
}

func TestAdapterValueLinearity(t *testing.T) {
	feed := NewManualFeed()
	feed.Set(big.NewInt(123_456_789), time.Now()) // awkward non-round price
	adapter, err := NewAdapter("WBTC", feed)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	x := e18(7)
	single, err := adapter.ValueInUSD(x)
	if err != nil {
		t.Fatalf("value(x): %v", err)
	}
	double, err := adapter.ValueInUSD(new(big.Int).Mul(x, big.NewInt(2)))
	if err != nil {
		t.Fatalf("value(2x): %v", err)
	}
	if double.Cmp(new(big.Int).Mul(single, big.NewInt(2))) != 0 {
		t.Fatalf("valuation not linear: 2*%s != %s", single, double)
	}
}

func TestAdapterZeroAmount(t *testing.T) {
	adapter, err := NewAdapter("WETH", feedFunc(func() (RoundData, error) {
		t.Fatal("feed must not be read for a zero amount")
		return RoundData{}, nil
	}))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	value, err := adapter.ValueInUSD(nil)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Sign() != 0 {
		t.Fatalf("expected zero value, got %s", value)
	}
}

func TestAdapterPropagatesFeedFailure(t *testing.T) {
	adapter, err := NewAdapter("WETH", feedFunc(func() (RoundData, error) {
		return RoundData{}, fmt.Errorf("feed down")
	}))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := adapter.ValueInUSD(e18(1)); err == nil {
		t.Fatal("expected feed failure to propagate")
	}
}

func TestManualFeedRequiresObservation(t *testing.T) {
	feed := NewManualFeed()
	if _, err := feed.LatestRound(); err == nil {
		t.Fatal("expected error before first observation")
	}
	now := time.Now().UTC()
	feed.SetUSD(1500, now)
	round, err := feed.LatestRound()
	if err != nil {
		t.Fatalf("latest round: %v", err)
	}
	if round.Answer.Cmp(big.NewInt(150_000_000_000)) != 0 {
		t.Fatalf("unexpected answer %s", round.Answer)
	}
	if !round.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamp %v", round.UpdatedAt)
	}
}

func TestHTTPFeedLatestRound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "WETH" {
			t.Fatalf("expected symbol=WETH, got %s", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Fatalf("expected api key header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"round":     42,
			"answer":    "200000000000",
			"timestamp": time.Now().Unix(),
		})
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.Client(), server.URL, "weth", "secret")
	round, err := feed.LatestRound()
	if err != nil {
		t.Fatalf("latest round: %v", err)
	}
	if round.Round != 42 {
		t.Fatalf("unexpected round %d", round.Round)
	}
	if round.Answer.Cmp(big.NewInt(200_000_000_000)) != 0 {
		t.Fatalf("unexpected answer %s", round.Answer)
	}
}

func TestHTTPFeedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.Client(), server.URL, "WETH", "")
	if _, err := feed.LatestRound(); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
