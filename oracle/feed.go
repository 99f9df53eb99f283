package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// FeedDecimals is the fixed-point precision every upstream feed reports its
// answer at. Chainlink-style USD feeds use 8 decimals.
const FeedDecimals = 8

// RoundData is the latest observation reported by a price feed. Answer is a
// USD price at FeedDecimals precision.
type RoundData struct {
	Round     uint64
	Answer    *big.Int
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (r RoundData) Clone() RoundData {
	clone := RoundData{Round: r.Round, UpdatedAt: r.UpdatedAt}
	if r.Answer != nil {
		clone.Answer = new(big.Int).Set(r.Answer)
	}
	return clone
}

// PriceFeed reads the latest price for one collateral asset from an external
// source. Every call re-reads the feed; there is no caching.
type PriceFeed interface {
	LatestRound() (RoundData, error)
}

// ManualFeed is an in-memory feed used by tests and for manual overrides
// during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	round RoundData
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set records the answer (at FeedDecimals precision) for subsequent reads.
func (m *ManualFeed) Set(answer *big.Int, ts time.Time) {
	if m == nil || answer == nil {
		return
	}
	m.mu.Lock()
	m.round = RoundData{
		Round:     m.round.Round + 1,
		Answer:    new(big.Int).Set(answer),
		UpdatedAt: ts,
	}
	m.set = true
	m.mu.Unlock()
}

// SetUSD records a whole-dollar price, scaling it to FeedDecimals.
func (m *ManualFeed) SetUSD(dollars int64, ts time.Time) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(FeedDecimals), nil)
	m.Set(new(big.Int).Mul(big.NewInt(dollars), scale), ts)
}

// LatestRound returns the stored observation.
func (m *ManualFeed) LatestRound() (RoundData, error) {
	if m == nil {
		return RoundData{}, fmt.Errorf("manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return RoundData{}, fmt.Errorf("manual feed: no round recorded")
	}
	return m.round.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed reads price rounds from a JSON quote endpoint. The endpoint is
// expected to respond with the answer as a decimal string at FeedDecimals
// precision plus a round sequence and unix timestamp.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	symbol   string
	apiKey   string
}

// NewHTTPFeed constructs a feed adapter for the given asset symbol. When the
// client is nil http.DefaultClient is used. The API key is optional and only
// added to request headers when supplied.
func NewHTTPFeed(client HTTPDoer, endpoint, symbol, apiKey string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		apiKey:   strings.TrimSpace(apiKey),
	}
}

func (f *HTTPFeed) LatestRound() (RoundData, error) {
	if f == nil || f.endpoint == "" {
		return RoundData{}, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return RoundData{}, err
	}
	values := url.Values{}
	values.Set("symbol", f.symbol)
	values.Set("quote", "USD")
	req.URL.RawQuery = values.Encode()
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return RoundData{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RoundData{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Round     uint64 `json:"round"`
		Answer    string `json:"answer"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RoundData{}, fmt.Errorf("http feed: decode: %w", err)
	}
	answer, ok := new(big.Int).SetString(strings.TrimSpace(payload.Answer), 10)
	if !ok {
		return RoundData{}, fmt.Errorf("http feed: invalid answer %q", payload.Answer)
	}
	return RoundData{
		Round:     payload.Round,
		Answer:    answer,
		UpdatedAt: time.Unix(payload.Timestamp, 0),
	}, nil
}
