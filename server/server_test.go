package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stablemint/config"
	"stablemint/crypto"
	"stablemint/engine"
	"stablemint/journal"
	"stablemint/ledger"
	"stablemint/oracle"
	"stablemint/storage"
	"stablemint/token"
)

type testEnv struct {
	server *Server
	user   crypto.Address
	weth   *token.Module
}

func newAddr(b byte) crypto.Address {
	buf := make([]byte, crypto.AddressLength)
	buf[0] = b
	return crypto.MustNewAddress(buf)
}

func amount18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oracle.PricePrecision)
}

func newTestEnv(t *testing.T, policy config.Policy) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	store := ledger.NewStore(db)
	operator := newAddr(1)
	custody := newAddr(2)
	user := newAddr(3)

	weth, err := token.NewModule(db, "WETH", operator)
	require.NoError(t, err)
	stable, err := token.NewModule(db, "USDM", custody)
	require.NoError(t, err)
	require.NoError(t, weth.Mint(operator, user, amount18(100)))

	feed := oracle.NewManualFeed()
	feed.SetUSD(2000, time.Unix(1700000000, 0))
	adapter, err := oracle.NewAdapter("WETH", feed)
	require.NoError(t, err)
	ctrl, err := token.NewController(stable, custody)
	require.NoError(t, err)
	eng, err := engine.NewEngine(custody, store,
		[]string{"WETH"},
		[]*oracle.Adapter{adapter},
		map[string]token.Transferrer{"WETH": weth.Bound(custody)},
		ctrl,
	)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	jnl, err := journal.New(gdb)
	require.NoError(t, err)

	idem, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idempotency.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })

	srv := New(Config{
		Engine:      eng,
		Journal:     jnl,
		Policy:      policy,
		Idempotency: idem,
	})
	return &testEnv{server: srv, user: user, weth: weth}
}

func openPolicy() config.Policy {
	return config.Policy{
		Auth:      config.AuthPolicy{Disabled: true},
		RateLimit: config.RateLimitPolicy{PerSecond: 1000, Burst: 1000},
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:55000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDepositAndPosition(t *testing.T) {
	env := newTestEnv(t, openPolicy())

	rec := env.do(t, http.MethodPost, "/v1/collateral/deposit", operationRequest{
		Account: env.user.String(),
		Asset:   "WETH",
		Amount:  amount18(15).String(),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/positions/"+env.user.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pos positionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.Equal(t, amount18(15).String(), pos.Collateral["WETH"])
	require.Equal(t, amount18(30000).String(), pos.ValueUSD)
	require.Equal(t, "0", pos.Debt)

	rec = env.do(t, http.MethodGet, "/v1/positions/"+env.user.String()+"/journal", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []journal.Operation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	require.Len(t, ops, 1)
	require.Equal(t, journal.KindDeposit, ops[0].Kind)
	require.Equal(t, journal.StatusApplied, ops[0].Status)
}

func TestDepositAndMintRejectedBySolvency(t *testing.T) {
	env := newTestEnv(t, openPolicy())

	rec := env.do(t, http.MethodPost, "/v1/collateral/deposit-and-mint", operationRequest{
		Account:          env.user.String(),
		Asset:            "WETH",
		AmountCollateral: amount18(1).String(),
		AmountDebt:       amount18(2000).String(),
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	require.NotEmpty(t, apiErr.HealthFactor)

	// Nothing retained: the user keeps the full balance.
	balance, err := env.weth.BalanceOf(env.user)
	require.NoError(t, err)
	require.Equal(t, amount18(100).String(), balance.String())

	rec = env.do(t, http.MethodGet, "/v1/positions/"+env.user.String()+"/journal", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []journal.Operation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	require.Len(t, ops, 1)
	require.Equal(t, journal.StatusRejected, ops[0].Status)
	require.NotEmpty(t, ops[0].Reason)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, openPolicy())

	rec := env.do(t, http.MethodPost, "/v1/stable/mint", operationRequest{
		Account: "nhb1wrongprefix",
		Amount:  "1",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/stable/mint", operationRequest{
		Account: env.user.String(),
		Amount:  "-5",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/collateral/deposit", operationRequest{
		Account: env.user.String(),
		Asset:   "DOGE",
		Amount:  "1",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/positions/not-an-address", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t, openPolicy())

	body := operationRequest{
		Account: env.user.String(),
		Asset:   "WETH",
		Amount:  amount18(10).String(),
	}
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}

	rec := env.do(t, http.MethodPost, "/v1/collateral/deposit", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Idempotency-Replayed"))

	rec = env.do(t, http.MethodPost, "/v1/collateral/deposit", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotency-Replayed"))

	// The replay did not execute a second deposit.
	balance, err := env.weth.BalanceOf(env.user)
	require.NoError(t, err)
	require.Equal(t, amount18(90).String(), balance.String())
}

func TestBearerAuth(t *testing.T) {
	t.Setenv("STABLEMINT_TEST_JWT_SECRET", "server-test-secret")
	policy := openPolicy()
	policy.Auth = config.AuthPolicy{
		Disabled:     false,
		JWTSecretEnv: "STABLEMINT_TEST_JWT_SECRET",
		Issuer:       "stablemint",
	}
	env := newTestEnv(t, policy)

	body := operationRequest{
		Account: env.user.String(),
		Asset:   "WETH",
		Amount:  amount18(1).String(),
	}
	rec := env.do(t, http.MethodPost, "/v1/collateral/deposit", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health and metrics stay open.
	rec = env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	claims := jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		Issuer:    "stablemint",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-test-secret"))
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/v1/collateral/deposit", body, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	wrong, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/v1/collateral/deposit", body, map[string]string{
		"Authorization": "Bearer " + wrong,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	policy := openPolicy()
	policy.RateLimit = config.RateLimitPolicy{PerSecond: 0.001, Burst: 1}
	env := newTestEnv(t, policy)

	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
