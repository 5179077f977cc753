package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openswap-labs/escrowdex/pkg/custody"
	"github.com/openswap-labs/escrowdex/pkg/exchange"
)

var (
	alice  = "0xAA00000000000000000000000000000000000000"
	bob    = "0xBB00000000000000000000000000000000000000"
	carol  = "0xCC00000000000000000000000000000000000000"
	tokenA = "0x1000000000000000000000000000000000000000"
	tokenB = "0x2000000000000000000000000000000000000000"
	escrow = common.HexToAddress("0xEE00000000000000000000000000000000000000")
)

func newTestServer(t *testing.T) (*Server, *custody.Vault) {
	vault := custody.NewMemVault()
	registry, err := exchange.NewRegistry(exchange.RegistryConfig{
		Escrow:  escrow,
		Custody: vault,
	})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	engine := exchange.NewEngine(registry, nil, nil)
	return NewServer(registry, engine, vault, nil), vault
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestPlaceAndGetOrder(t *testing.T) {
	s, vault := newTestServer(t)
	vault.Deposit(common.HexToAddress(alice), common.HexToAddress(tokenA), 10)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker:     alice,
		TokenBuy:  tokenB,
		TokenSell: tokenA,
		Quantity:  9,
		Cost:      10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("place status = %d, body %s", rec.Code, rec.Body.String())
	}
	placed := decode[PlaceOrderResponse](t, rec)
	if placed.OrderID != 0 {
		t.Errorf("order id = %d, want 0", placed.OrderID)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/orders/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[OrderInfo](t, rec)
	if got.Status != "open" || got.Quantity != 9 || got.Cost != 10 {
		t.Errorf("order = %+v", got)
	}

	// Never-issued id renders as the closed sentinel, not an error.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/orders/99", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sentinel get status = %d", rec.Code)
	}
	sentinel := decode[OrderInfo](t, rec)
	if sentinel.Status != "closed" || sentinel.Quantity != 0 || sentinel.Cost != 0 {
		t.Errorf("sentinel = %+v", sentinel)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/orders/count", nil)
	if count := decode[CountResponse](t, rec); count.Count != 1 {
		t.Errorf("count = %d, want 1", count.Count)
	}
}

func TestPlaceOrderRejections(t *testing.T) {
	s, _ := newTestServer(t)

	// Same token pair: validation error, 400.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker:     alice,
		TokenBuy:  tokenA,
		TokenSell: tokenA,
		Quantity:  1,
		Cost:      1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("same token status = %d, want 400", rec.Code)
	}

	// Unfunded maker: custody refusal, 402.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker:     alice,
		TokenBuy:  tokenB,
		TokenSell: tokenA,
		Quantity:  1,
		Cost:      1,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("unfunded status = %d, want 402", rec.Code)
	}

	// Malformed address.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker:     "not-an-address",
		TokenBuy:  tokenB,
		TokenSell: tokenA,
		Quantity:  1,
		Cost:      1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d, want 400", rec.Code)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	s, vault := newTestServer(t)
	vault.Deposit(common.HexToAddress(alice), common.HexToAddress(tokenA), 10)

	doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker: alice, TokenBuy: tokenB, TokenSell: tokenA, Quantity: 9, Cost: 10,
	})

	// Non-maker cancel is forbidden.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{
		OrderID: 0, Requester: bob,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-maker cancel status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{
		OrderID: 0, Requester: alice,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[CancelOrderResponse](t, rec)
	if got.Status != "closed" || got.Refunded != 10 {
		t.Errorf("cancel response = %+v", got)
	}

	// Second cancel conflicts.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{
		OrderID: 0, Requester: alice,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("double cancel status = %d, want 409", rec.Code)
	}
}

func TestMatchOrdersEndpoint(t *testing.T) {
	s, vault := newTestServer(t)
	vault.Deposit(common.HexToAddress(alice), common.HexToAddress(tokenA), 10)
	vault.Deposit(common.HexToAddress(bob), common.HexToAddress(tokenB), 10)

	doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker: alice, TokenBuy: tokenB, TokenSell: tokenA, Quantity: 9, Cost: 10,
	})
	doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Maker: bob, TokenBuy: tokenA, TokenSell: tokenB, Quantity: 8, Cost: 10,
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders/match", MatchOrdersRequest{
		OrderID1: 0, OrderID2: 1, Matcher: carol,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("match status = %d, body %s", rec.Code, rec.Body.String())
	}
	settled := decode[SettlementInfo](t, rec)
	if settled.Paid1 != 9 || settled.Paid2 != 8 || settled.Surplus1 != 1 || settled.Surplus2 != 2 {
		t.Errorf("settlement = %+v", settled)
	}

	// Re-matching closed orders conflicts.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders/match", MatchOrdersRequest{
		OrderID1: 0, OrderID2: 1, Matcher: carol,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("re-match status = %d, want 409", rec.Code)
	}
}

func TestDepositAndBalanceEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/accounts/deposit", DepositRequest{
		Account: alice, Token: tokenA, Amount: 42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/accounts/"+alice+"/balances/"+tokenA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d", rec.Code)
	}
	if got := decode[BalanceInfo](t, rec); got.Balance != 42 {
		t.Errorf("balance = %d, want 42", got.Balance)
	}
}
