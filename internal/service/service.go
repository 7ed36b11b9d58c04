// Package service provides the HTTP handlers and orchestration for
// creating pools, accepting stakes, settling outcomes, and quoting
// pro-forma returns.
//
// The settlement engine itself is pure (internal/pool); this layer owns
// the live pool registry, journals stakes and settlements to the store,
// and broadcasts events to WebSocket clients.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trustpooler/pool-engine/internal/metrics"
	"github.com/trustpooler/pool-engine/internal/model"
	"github.com/trustpooler/pool-engine/internal/pool"
	"github.com/trustpooler/pool-engine/internal/store"
)

// Service handles pool operations. Uses a mutex to serialize stake and
// settlement execution (single-instance). For horizontal scaling, shard
// pools across instances; pools share no state.
type Service struct {
	store    store.Store
	accounts pool.AccountProvider
	defaults PoolDefaults

	mu    sync.Mutex
	pools map[string]*poolHandle

	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
}

// PoolDefaults carries the configured defaults applied when a create
// request leaves a tunable unset.
type PoolDefaults struct {
	FeeRate   decimal.Decimal
	Tolerance decimal.Decimal
	Tick      int64
}

// poolHandle tags a live engine with its kind. Exactly one of cat/thr is
// set.
type poolHandle struct {
	id        string
	kind      string
	cat       *pool.CategoricalPool
	thr       *pool.ThresholdPool
	createdAt time.Time
}

// NewService creates a new pool service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, accounts pool.AccountProvider, defaults PoolDefaults, hub *WSHub) *Service {
	if defaults.FeeRate.IsZero() {
		defaults.FeeRate = decimal.NewFromFloat(0.03)
	}
	if defaults.Tolerance.IsZero() {
		defaults.Tolerance = decimal.NewFromFloat(0.01)
	}
	if defaults.Tick <= 0 {
		defaults.Tick = 1
	}
	return &Service{
		store:    st,
		accounts: accounts,
		defaults: defaults,
		pools:    make(map[string]*poolHandle),
		wsHub:    hub,
	}
}

// --- Request/Response types ---

// CreatePoolRequest is the JSON body for pool creation. FeeRate and
// Tolerance are pointers so an explicit zero (a fee-free pool) is
// distinguishable from an omitted field, which takes the configured
// default.
type CreatePoolRequest struct {
	Kind      string           `json:"kind"` // "categorical" or "threshold"
	FeeRate   *decimal.Decimal `json:"fee_rate,omitempty"`
	Tolerance *decimal.Decimal `json:"tolerance,omitempty"`
	Tick      int64            `json:"tick,omitempty"` // threshold only; 0 → default
}

// PoolResponse is the snapshot returned for a pool.
type PoolResponse struct {
	ID            string                     `json:"id"`
	Kind          string                     `json:"kind"`
	FeeRate       decimal.Decimal            `json:"fee_rate"`
	TotalPool     decimal.Decimal            `json:"total_pool"`
	Fees          decimal.Decimal            `json:"fees"`
	Distributable decimal.Decimal            `json:"distributable"`
	Categories    map[string]decimal.Decimal `json:"categories"`
	Positions     []pool.Position            `json:"positions"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// StakeRequest is the JSON body for placing a stake. Category is set for
// categorical pools; Side and Price for threshold pools.
type StakeRequest struct {
	Owner    string          `json:"owner"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category,omitempty"`
	Side     string          `json:"side,omitempty"` // "Long" or "Short"
	Price    int64           `json:"price,omitempty"`
}

// StakeResponse is returned from a successful stake.
type StakeResponse struct {
	StakeID string `json:"stake_id"`
	PoolID  string `json:"pool_id"`
	TxID    int64  `json:"tx_id"`
}

// OutcomeRequest names a resolved or hypothetical outcome level. Category
// is the outcome for categorical pools; Level for threshold pools.
type OutcomeRequest struct {
	Category string `json:"category,omitempty"`
	Level    *int64 `json:"level,omitempty"`
}

// SettleRequest is the JSON body for POST /settle.
type SettleRequest struct {
	Outcome OutcomeRequest `json:"outcome"`
}

// QuoteRequest is the JSON body for a pro-forma quote or a payoff curve.
// The event fields follow StakeRequest; Outcome is ignored for curves.
type QuoteRequest struct {
	StakeRequest
	Outcome OutcomeRequest `json:"outcome"`
}

// SettlementView is the JSON shape for one winner, common to both kinds.
type SettlementView struct {
	TxID          int64           `json:"tx_id"`
	Owner         string          `json:"owner"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	PoolShare     decimal.Decimal `json:"pool_share"`
	WinningsShare decimal.Decimal `json:"winnings_share"`
	Payoff        decimal.Decimal `json:"payoff"`
	Payout        decimal.Decimal `json:"payout"`

	PrimaFaciePayoff          decimal.Decimal `json:"prima_facie_payoff,omitempty"`
	PrimaFaciePayout          decimal.Decimal `json:"prima_facie_payout,omitempty"`
	InverseDistance           decimal.Decimal `json:"inverse_distance,omitempty"`
	NormalizedInverseDistance decimal.Decimal `json:"normalized_inverse_distance,omitempty"`
	RedistributedAmount       decimal.Decimal `json:"redistributed_amount,omitempty"`
}

// SettleResponse is the JSON body returned from POST /settle.
type SettleResponse struct {
	PoolID    string           `json:"pool_id"`
	Outcome   string           `json:"outcome"`
	Winners   []SettlementView `json:"winners"`
	TotalPaid decimal.Decimal  `json:"total_paid"`
	Fees      decimal.Decimal  `json:"fees"`
}

// --- HTTP Handlers ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	opts := s.poolOptions(req)
	h := &poolHandle{
		id:        uuid.New().String(),
		kind:      req.Kind,
		createdAt: time.Now().UTC(),
	}

	var err error
	switch req.Kind {
	case model.KindCategorical:
		h.cat, err = pool.NewCategoricalPool(s.accounts, opts...)
	case model.KindThreshold:
		h.thr, err = pool.NewThresholdPool(s.accounts, opts...)
	default:
		writeError(w, "kind must be categorical or threshold", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pools[h.id] = h
	s.mu.Unlock()
	metrics.OpenPools.Inc()

	slog.Info("pool created", "id", h.id, "kind", h.kind)

	writeJSON(w, http.StatusCreated, s.snapshot(h))
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := make([]PoolResponse, 0, len(s.pools))
	for _, h := range s.pools {
		resp = append(resp, s.snapshot(h))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pools[chi.URLParam(r, "poolID")]
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(h))
}

// PlaceStake handles POST /api/v1/pools/{poolID}/stakes
func (s *Service) PlaceStake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pools[chi.URLParam(r, "poolID")]
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var (
		txID     int64
		category string
		level    string
		err      error
	)

	switch h.kind {
	case model.KindCategorical:
		event := pool.NewCategoricalEvent(req.Category)
		txID, err = h.cat.Stake(event, req.Amount, req.Owner)
		category, level = req.Category, req.Category
	case model.KindThreshold:
		side, sideErr := parseSide(req.Side)
		if sideErr != nil {
			metrics.StakeRejections.Inc()
			writeError(w, sideErr.Error(), http.StatusBadRequest)
			return
		}
		event := pool.NewThresholdEvent(side, req.Price)
		txID, err = h.thr.Stake(event, req.Amount, req.Owner)
		category, level = side.String(), strconv.FormatInt(req.Price, 10)
	}
	if err != nil {
		metrics.StakeRejections.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Journal the accepted stake.
	rec := &model.StakeRecord{
		ID:        uuid.New().String(),
		PoolID:    h.id,
		PoolKind:  h.kind,
		TxID:      txID,
		Owner:     req.Owner,
		Category:  category,
		Level:     level,
		Amount:    req.Amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertStake(r.Context(), rec); err != nil {
		writeError(w, "failed to record stake", http.StatusInternalServerError)
		return
	}

	metrics.StakesTotal.WithLabelValues(h.kind).Inc()

	slog.Info("stake accepted",
		"pool", h.id,
		"tx", txID,
		"owner", req.Owner,
		"category", category,
		"level", level,
		"amount", req.Amount.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "stake_accepted",
			PoolID:   h.id,
			PoolKind: h.kind,
			TxID:     txID,
			Owner:    req.Owner,
			Category: category,
			Amount:   req.Amount.String(),
		})
	}

	writeJSON(w, http.StatusCreated, StakeResponse{
		StakeID: rec.ID,
		PoolID:  h.id,
		TxID:    txID,
	})
}

// GetStakes handles GET /api/v1/pools/{poolID}/stakes
func (s *Service) GetStakes(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	recs, err := s.store.GetStakesByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to load stake journal", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.StakeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// SettlePool handles POST /api/v1/pools/{poolID}/settle
// Runs the pool kind's settlement algorithm at the resolved outcome,
// journals the winners, and returns them.
func (s *Service) SettlePool(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pools[chi.URLParam(r, "poolID")]
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var (
		views   []SettlementView
		outcome string
		fees    decimal.Decimal
		err     error
	)

	switch h.kind {
	case model.KindCategorical:
		if req.Outcome.Category == "" {
			writeError(w, "outcome.category is required", http.StatusBadRequest)
			return
		}
		outcome = req.Outcome.Category
		fees = h.cat.Fees()
		var winners []pool.Settlement[string, pool.CategoricalEvent]
		winners, err = h.cat.Settle(req.Outcome.Category)
		for _, win := range winners {
			views = append(views, categoricalView(win))
		}
	case model.KindThreshold:
		if req.Outcome.Level == nil {
			writeError(w, "outcome.level is required", http.StatusBadRequest)
			return
		}
		outcome = strconv.FormatInt(*req.Outcome.Level, 10)
		fees = h.thr.Fees()
		var winners []pool.Settlement[int64, pool.ThresholdEvent]
		winners, err = h.thr.Settle(*req.Outcome.Level)
		for _, win := range winners {
			views = append(views, thresholdView(win))
		}
	}
	if err != nil {
		var cons *pool.ConservationError
		if errors.As(err, &cons) {
			metrics.ConservationViolations.Inc()
			slog.Error("conservation violated", "pool", h.id, "outcome", outcome, "err", err)
			writeError(w, "internal error: settlement conservation violated", http.StatusInternalServerError)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Journal the winners.
	now := time.Now().UTC()
	totalPaid := decimal.Zero
	recs := make([]model.SettlementRecord, 0, len(views))
	for _, v := range views {
		totalPaid = totalPaid.Add(v.Payout)
		recs = append(recs, model.SettlementRecord{
			ID:        uuid.New().String(),
			PoolID:    h.id,
			Outcome:   outcome,
			TxID:      v.TxID,
			Owner:     v.Owner,
			Amount:    v.Amount,
			Payoff:    v.Payoff,
			Payout:    v.Payout,
			SettledAt: now,
		})
	}
	if len(recs) > 0 {
		if err := s.store.InsertSettlements(r.Context(), recs); err != nil {
			writeError(w, "failed to record settlements", http.StatusInternalServerError)
			return
		}
	}

	metrics.SettlementsTotal.WithLabelValues(h.kind).Inc()
	metrics.SettlementPayout.WithLabelValues(h.kind).Add(totalPaid.InexactFloat64())

	slog.Info("pool settled",
		"pool", h.id,
		"outcome", outcome,
		"winners", len(views),
		"total_paid", totalPaid.String(),
		"fees", fees.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "pool_settled",
			PoolID:   h.id,
			PoolKind: h.kind,
			Outcome:  outcome,
			Winners:  len(views),
			Paid:     totalPaid.String(),
		})
	}

	writeJSON(w, http.StatusOK, SettleResponse{
		PoolID:    h.id,
		Outcome:   outcome,
		Winners:   views,
		TotalPaid: totalPaid,
		Fees:      fees,
	})
}

// GetSettlements handles GET /api/v1/pools/{poolID}/settlements
func (s *Service) GetSettlements(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	recs, err := s.store.GetSettlementsByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to load settlement history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.SettlementRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Quote handles POST /api/v1/pools/{poolID}/quote
// Answers "what would this stake win if the outcome resolved here?"
// without touching the live ledger.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pools[chi.URLParam(r, "poolID")]
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	switch h.kind {
	case model.KindCategorical:
		if req.Outcome.Category == "" {
			writeError(w, "outcome.category is required", http.StatusBadRequest)
			return
		}
		event := pool.NewCategoricalEvent(req.Category)
		win, err := h.cat.ProFormaReturn(event, req.Amount, req.Outcome.Category)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, categoricalView(win))
	case model.KindThreshold:
		if req.Outcome.Level == nil {
			writeError(w, "outcome.level is required", http.StatusBadRequest)
			return
		}
		side, err := parseSide(req.Side)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		event := pool.NewThresholdEvent(side, req.Price)
		win, err := h.thr.ProFormaReturn(event, req.Amount, *req.Outcome.Level)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, thresholdView(win))
	}
}

// PayoffCurve handles POST /api/v1/pools/{poolID}/curve
// Sweeps the pro-forma quote across every staked level (plus boundary
// probes for threshold pools) and returns level → payoff multiple.
func (s *Service) PayoffCurve(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pools[chi.URLParam(r, "poolID")]
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	switch h.kind {
	case model.KindCategorical:
		event := pool.NewCategoricalEvent(req.Category)
		curve, err := h.cat.PayoffCurve(event, req.Amount)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, curve)
	case model.KindThreshold:
		side, err := parseSide(req.Side)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		event := pool.NewThresholdEvent(side, req.Price)
		curve, err := h.thr.PayoffCurve(event, req.Amount)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, curve)
	}
}

// --- Helpers ---

// snapshot builds a PoolResponse. Caller holds s.mu.
func (s *Service) snapshot(h *poolHandle) PoolResponse {
	resp := PoolResponse{
		ID:        h.id,
		Kind:      h.kind,
		CreatedAt: h.createdAt,
	}
	switch h.kind {
	case model.KindCategorical:
		resp.FeeRate = h.cat.FeeRate()
		resp.TotalPool = h.cat.TotalPool()
		resp.Fees = h.cat.Fees()
		resp.Distributable = h.cat.Distributable()
		resp.Categories = h.cat.CategoryBreakdown()
		resp.Positions = h.cat.Positions()
	case model.KindThreshold:
		resp.FeeRate = h.thr.FeeRate()
		resp.TotalPool = h.thr.TotalPool()
		resp.Fees = h.thr.Fees()
		resp.Distributable = h.thr.Distributable()
		resp.Categories = h.thr.CategoryBreakdown()
		resp.Positions = h.thr.Positions()
	}
	return resp
}

func (s *Service) poolOptions(req CreatePoolRequest) []pool.Option {
	feeRate := s.defaults.FeeRate
	if req.FeeRate != nil {
		feeRate = *req.FeeRate
	}
	tolerance := s.defaults.Tolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}
	tick := req.Tick
	if tick <= 0 {
		tick = s.defaults.Tick
	}
	return []pool.Option{
		pool.WithFeeRate(feeRate),
		pool.WithTolerance(tolerance),
		pool.WithTick(tick),
	}
}

func parseSide(side string) (pool.Side, error) {
	switch side {
	case "Long":
		return pool.SideLong, nil
	case "Short":
		return pool.SideShort, nil
	default:
		return pool.SideNeither, pool.ErrInvalidSide
	}
}

func categoricalView(win pool.Settlement[string, pool.CategoricalEvent]) SettlementView {
	return SettlementView{
		TxID:          win.Position.ID,
		Owner:         win.Position.OwnerAccount,
		Category:      win.Event.Category(),
		Amount:        win.Position.Amount,
		PoolShare:     win.PoolShare,
		WinningsShare: win.WinningsShare,
		Payoff:        win.Payoff,
		Payout:        win.Position.Payout,
	}
}

func thresholdView(win pool.Settlement[int64, pool.ThresholdEvent]) SettlementView {
	return SettlementView{
		TxID:                      win.Position.ID,
		Owner:                     win.Position.OwnerAccount,
		Category:                  win.Event.Category(),
		Amount:                    win.Position.Amount,
		PoolShare:                 win.PoolShare,
		WinningsShare:             win.WinningsShare,
		Payoff:                    win.Payoff,
		Payout:                    win.Position.Payout,
		PrimaFaciePayoff:          win.PrimaFaciePayoff,
		PrimaFaciePayout:          win.PrimaFaciePayout,
		InverseDistance:           win.InverseDistance,
		NormalizedInverseDistance: win.NormalizedInverseDistance,
		RedistributedAmount:       win.RedistributedAmount,
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
