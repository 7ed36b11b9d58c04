package service_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/trustpooler/pool-engine/internal/accounts"
	"github.com/trustpooler/pool-engine/internal/model"
	"github.com/trustpooler/pool-engine/internal/service"
	"github.com/trustpooler/pool-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*service.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := service.NewService(ms, accounts.Default(), service.PoolDefaults{}, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/pools", svc.CreatePool)
	r.Get("/api/v1/pools", svc.ListPools)
	r.Get("/api/v1/pools/{poolID}", svc.GetPool)
	r.Post("/api/v1/pools/{poolID}/stakes", svc.PlaceStake)
	r.Get("/api/v1/pools/{poolID}/stakes", svc.GetStakes)
	r.Post("/api/v1/pools/{poolID}/settle", svc.SettlePool)
	r.Get("/api/v1/pools/{poolID}/settlements", svc.GetSettlements)
	r.Post("/api/v1/pools/{poolID}/quote", svc.Quote)
	r.Post("/api/v1/pools/{poolID}/curve", svc.PayoffCurve)

	return svc, ms, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createPool(t *testing.T, router chi.Router, kind string) string {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/pools", service.CreatePoolRequest{Kind: kind})
	if w.Code != http.StatusCreated {
		t.Fatalf("create pool: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp service.PoolResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID == "" {
		t.Fatal("expected non-empty pool id")
	}
	return resp.ID
}

func placeStake(t *testing.T, router chi.Router, poolID string, req service.StakeRequest) service.StakeResponse {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/stakes", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("place stake: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp service.StakeResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// seedCategoricalPool stakes the reference scenario into a new pool.
func seedCategoricalPool(t *testing.T, router chi.Router) string {
	t.Helper()
	poolID := createPool(t, router, model.KindCategorical)
	placeStake(t, router, poolID, service.StakeRequest{Owner: "barney", Amount: d(500), Category: "default"})
	placeStake(t, router, poolID, service.StakeRequest{Owner: "barney", Amount: d(2500), Category: "default"})
	placeStake(t, router, poolID, service.StakeRequest{Owner: "arnold", Amount: d(10000), Category: "no_default"})
	placeStake(t, router, poolID, service.StakeRequest{Owner: "arnold", Amount: d(5000), Category: "no_default"})
	return poolID
}

// --- Pool lifecycle tests ---

func TestCreatePool_InvalidKind(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doJSON(t, router, "POST", "/api/v1/pools", service.CreatePoolRequest{Kind: "exotic"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", w.Code)
	}
}

func TestCreatePool_ExplicitZeroFeeRate(t *testing.T) {
	_, _, router := newTestEnv(t)

	zero := decimal.Zero
	w := doJSON(t, router, "POST", "/api/v1/pools",
		service.CreatePoolRequest{Kind: model.KindCategorical, FeeRate: &zero})
	if w.Code != http.StatusCreated {
		t.Fatalf("fee-free pool creation: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created service.PoolResponse
	json.Unmarshal(w.Body.Bytes(), &created)
	if !created.FeeRate.IsZero() {
		t.Fatalf("explicit zero fee rate must not fall back to the default, got %s", created.FeeRate)
	}

	placeStake(t, router, created.ID, service.StakeRequest{Owner: "barney", Amount: d(1000), Category: "default"})
	placeStake(t, router, created.ID, service.StakeRequest{Owner: "arnold", Amount: d(3000), Category: "no_default"})

	// With no fee, the winner collects the entire pool.
	w = doJSON(t, router, "POST", "/api/v1/pools/"+created.ID+"/settle",
		service.SettleRequest{Outcome: service.OutcomeRequest{Category: "default"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp service.SettleResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Fees.IsZero() {
		t.Errorf("fee-free pool charged fees: %s", resp.Fees)
	}
	if !resp.TotalPaid.Equal(d(4000)) {
		t.Errorf("winner should collect the full pool 4000, got %s", resp.TotalPaid)
	}
}

func TestPlaceStake_Validation(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := createPool(t, router, model.KindCategorical)

	// Missing owner.
	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/stakes",
		service.StakeRequest{Amount: d(100), Category: "default"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing owner, got %d", w.Code)
	}

	// Non-positive amount.
	w = doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/stakes",
		service.StakeRequest{Owner: "barney", Amount: d(0), Category: "default"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero amount, got %d", w.Code)
	}

	// Unknown pool.
	w = doJSON(t, router, "POST", "/api/v1/pools/nope/stakes",
		service.StakeRequest{Owner: "barney", Amount: d(100), Category: "default"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pool, got %d", w.Code)
	}
}

func TestPlaceStake_ThresholdRequiresSide(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := createPool(t, router, model.KindThreshold)

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/stakes",
		service.StakeRequest{Owner: "barney", Amount: d(100), Price: 50})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing side, got %d", w.Code)
	}
}

func TestStakeJournal(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "GET", "/api/v1/pools/"+poolID+"/stakes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []model.StakeRecord
	json.Unmarshal(w.Body.Bytes(), &recs)
	if len(recs) != 4 {
		t.Fatalf("expected 4 journal rows, got %d", len(recs))
	}
	if recs[0].TxID != 0 || recs[3].TxID != 3 {
		t.Error("journal rows should carry monotonic tx ids")
	}
}

func TestGetPool_Snapshot(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "GET", "/api/v1/pools/"+poolID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp service.PoolResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.TotalPool.Equal(d(18000)) {
		t.Errorf("total pool should be 18000, got %s", resp.TotalPool)
	}
	if !resp.Fees.Equal(d(540)) {
		t.Errorf("fees should be 540, got %s", resp.Fees)
	}
	if !resp.Categories["default"].Equal(d(3000)) {
		t.Errorf("default category should be 3000, got %s", resp.Categories["default"])
	}
	if len(resp.Positions) != 4 {
		t.Errorf("expected 4 positions, got %d", len(resp.Positions))
	}
}

// --- Settlement tests ---

func TestSettleCategorical(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/settle",
		service.SettleRequest{Outcome: service.OutcomeRequest{Category: "default"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.SettleResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(resp.Winners))
	}
	for _, win := range resp.Winners {
		if !win.Payoff.Equal(d(5.82)) {
			t.Errorf("winner payoff should be 5.82, got %s", win.Payoff)
		}
	}
	if !resp.TotalPaid.Equal(d(17460)) {
		t.Errorf("total paid should be 17460, got %s", resp.TotalPaid)
	}
	if !resp.Fees.Equal(d(540)) {
		t.Errorf("fees should be 540, got %s", resp.Fees)
	}

	// Winners were journaled.
	w = doJSON(t, router, "GET", "/api/v1/pools/"+poolID+"/settlements", nil)
	var recs []model.SettlementRecord
	json.Unmarshal(w.Body.Bytes(), &recs)
	if len(recs) != 2 {
		t.Errorf("expected 2 settlement records, got %d", len(recs))
	}
}

func TestSettleCategorical_Degenerate(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/settle",
		service.SettleRequest{Outcome: service.OutcomeRequest{Category: "meteor_strike"}})
	if w.Code != http.StatusOK {
		t.Fatalf("degenerate settlement should return 200, got %d", w.Code)
	}
	var resp service.SettleResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Winners) != 0 {
		t.Errorf("expected no winners, got %d", len(resp.Winners))
	}
}

func TestSettleThreshold(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := createPool(t, router, model.KindThreshold)

	stakes := []service.StakeRequest{
		{Owner: "barney", Amount: d(500), Side: "Long", Price: 50},
		{Owner: "barney", Amount: d(250), Side: "Long", Price: 55},
		{Owner: "barney", Amount: d(1000), Side: "Long", Price: 60},
		{Owner: "arnold", Amount: d(700), Side: "Short", Price: 60},
		{Owner: "arnold", Amount: d(900), Side: "Short", Price: 55},
		{Owner: "arnold", Amount: d(1000), Side: "Short", Price: 50},
		{Owner: "arnold", Amount: d(1500), Side: "Short", Price: 40},
	}
	for _, s := range stakes {
		placeStake(t, router, poolID, s)
	}

	level := int64(56)
	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/settle",
		service.SettleRequest{Outcome: service.OutcomeRequest{Level: &level}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.SettleResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	// 56 beats Long@50 and Long@55 and sits under Short@60.
	if len(resp.Winners) != 3 {
		t.Fatalf("expected 3 winners, got %d", len(resp.Winners))
	}
	// The nearest stake (Long@55, distance 1) is reweighted far above the
	// others.
	if resp.Winners[0].Payout.GreaterThan(resp.Winners[1].Payout) {
		t.Error("Long@55 should out-earn Long@50 under inverse-distance weighting")
	}
	if resp.Winners[2].Payout.GreaterThan(resp.Winners[1].Payout) {
		t.Error("Long@55 should out-earn Short@60 under inverse-distance weighting")
	}
	if !resp.Fees.Equal(d(175.5)) {
		t.Errorf("fees should be 175.5, got %s", resp.Fees)
	}
	diff := resp.TotalPaid.Sub(d(5674.5)).Abs()
	if diff.GreaterThanOrEqual(d(0.01)) {
		t.Errorf("total paid should be ≈ 5674.5, got %s", resp.TotalPaid)
	}
}

// --- Pro-forma tests ---

func TestQuote_DoesNotMutatePool(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/quote", service.QuoteRequest{
		StakeRequest: service.StakeRequest{Owner: "curious", Amount: d(1000), Category: "default"},
		Outcome:      service.OutcomeRequest{Category: "default"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var quote service.SettlementView
	json.Unmarshal(w.Body.Bytes(), &quote)
	if !quote.Payoff.IsPositive() {
		t.Errorf("winning quote should have positive payoff, got %s", quote.Payoff)
	}

	// The live pool is unchanged.
	w = doJSON(t, router, "GET", "/api/v1/pools/"+poolID, nil)
	var resp service.PoolResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.TotalPool.Equal(d(18000)) {
		t.Errorf("quote mutated the pool: total %s", resp.TotalPool)
	}
	if len(resp.Positions) != 4 {
		t.Errorf("quote mutated the ledger: %d positions", len(resp.Positions))
	}
}

func TestQuote_LosingHypothetical(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := seedCategoricalPool(t, router)

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/quote", service.QuoteRequest{
		StakeRequest: service.StakeRequest{Owner: "curious", Amount: d(1000), Category: "default"},
		Outcome:      service.OutcomeRequest{Category: "no_default"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("losing quote must not fail: %d", w.Code)
	}
	var quote service.SettlementView
	json.Unmarshal(w.Body.Bytes(), &quote)
	if !quote.Payoff.IsZero() || !quote.Payout.IsZero() {
		t.Errorf("losing quote should be zero-valued, got %+v", quote)
	}
}

func TestPayoffCurve(t *testing.T) {
	_, _, router := newTestEnv(t)
	poolID := createPool(t, router, model.KindThreshold)
	placeStake(t, router, poolID, service.StakeRequest{Owner: "barney", Amount: d(500), Side: "Long", Price: 50})
	placeStake(t, router, poolID, service.StakeRequest{Owner: "arnold", Amount: d(700), Side: "Short", Price: 60})

	w := doJSON(t, router, "POST", "/api/v1/pools/"+poolID+"/curve", service.QuoteRequest{
		StakeRequest: service.StakeRequest{Owner: "curious", Amount: d(500), Side: "Long", Price: 50},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var curve map[string]decimal.Decimal
	json.Unmarshal(w.Body.Bytes(), &curve)

	// Levels 50, 60 plus boundary probes 49 and 61.
	if len(curve) != 4 {
		t.Fatalf("expected 4 curve points, got %d: %v", len(curve), curve)
	}
	if !curve["49"].IsZero() {
		t.Errorf("Long@50 should pay nothing at 49, got %s", curve["49"])
	}
	if !curve["61"].IsPositive() {
		t.Errorf("Long@50 should pay out at 61, got %s", curve["61"])
	}
}
