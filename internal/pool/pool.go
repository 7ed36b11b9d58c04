// Package pool implements the risk ledger and settlement engine for
// parimutuel-style risk pools: participants stake on an outcome, and once
// the outcome resolves the losers' stakes (minus a fee) are redistributed
// among the winners.
//
// Two pool kinds exist, differing only in the settlement rule:
//
//   - Categorical pools redistribute pro-rata: every winner receives the
//     same multiple of their stake.
//   - Threshold pools redistribute the winners' pool by inverse distance
//     to the realized level, rewarding stakes pinned closer to the outcome.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The engine is pure in-memory computation with no I/O; persistence and
// transport are collaborators' concerns.
package pool

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidStake is returned when a stake amount is not positive.
	ErrInvalidStake = errors.New("pool: stake amount must be positive")

	// ErrInvalidFeeRate is returned when the fee rate is outside [0, 1).
	ErrInvalidFeeRate = errors.New("pool: fee rate must be in [0, 1)")

	// ErrInvalidTolerance is returned when the conservation tolerance is
	// not positive.
	ErrInvalidTolerance = errors.New("pool: tolerance must be positive")

	// ErrInvalidTick is returned when the boundary probe tick is not positive.
	ErrInvalidTick = errors.New("pool: tick must be positive")

	// ErrZeroDistance is returned when a threshold winner sits exactly at
	// the resolved level. Equality is a loss, so this can only happen if
	// the winner predicate is defective.
	ErrZeroDistance = errors.New("pool: winning stake at zero distance to the resolved level")
)

// HypotheticalOwner is the owner account attached to pro-forma stakes.
const HypotheticalOwner = "Hypothetical"

// AccountProvider supplies the pool's and the pool manager's account
// identifiers. Injected by a collaborator, never computed here.
type AccountProvider interface {
	PoolAccount() string
	PoolManagerAccount() string
}

// weighting selects the settlement algorithm for a pool kind.
type weighting int

const (
	weightProRata weighting = iota
	weightInverseDistance
)

// settings holds the construction-time tunables shared by both pool kinds.
type settings struct {
	feeRate   decimal.Decimal
	tolerance decimal.Decimal
	tick      int64
}

// Option configures a pool at construction time.
type Option func(*settings) error

// WithFeeRate sets the pool fee rate. Must be in [0, 1). Default 0.03.
func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *settings) error {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: got %s", ErrInvalidFeeRate, rate)
		}
		s.feeRate = rate
		return nil
	}
}

// WithTolerance sets the conservation tolerance ε. Default 0.01.
func WithTolerance(eps decimal.Decimal) Option {
	return func(s *settings) error {
		if !eps.IsPositive() {
			return fmt.Errorf("%w: got %s", ErrInvalidTolerance, eps)
		}
		s.tolerance = eps
		return nil
	}
}

// WithTick sets the boundary probe tick for threshold pools: Levels
// inserts one tick under the lowest and one tick over the highest staked
// level so a payoff curve sweeps every regime change. Default 1.
// Categorical pools ignore it.
func WithTick(tick int64) Option {
	return func(s *settings) error {
		if tick <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidTick, tick)
		}
		s.tick = tick
		return nil
	}
}

func newSettings(opts []Option) (settings, error) {
	s := settings{
		feeRate:   decimal.NewFromFloat(0.03),
		tolerance: decimal.NewFromFloat(0.01),
		tick:      1,
	}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

// Pool is the ledger of staked risks and the settlement engine over them.
// L is the outcome level domain and E the event variant staked in this
// pool. The ledger is the single source of truth; settlements are derived
// and never stored back.
//
// A Pool is not safe for concurrent use; each pool is an independent,
// non-shared unit of state.
type Pool[L cmp.Ordered, E Event[L]] struct {
	accounts  AccountProvider
	feeRate   decimal.Decimal
	tolerance decimal.Decimal
	weighting weighting

	// probe extends a sorted level set with boundary probe points.
	// Nil for non-numeric level domains.
	probe func(levels []L) []L

	nextID int64
	risks  map[int64]Risk[L, E]
}

// CategoricalPool settles pro-rata over an open set of named categories.
type CategoricalPool = Pool[string, CategoricalEvent]

// ThresholdPool settles by inverse distance over integer price levels.
type ThresholdPool = Pool[int64, ThresholdEvent]

// NewCategoricalPool creates an empty categorical pool.
func NewCategoricalPool(accounts AccountProvider, opts ...Option) (*CategoricalPool, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &CategoricalPool{
		accounts:  accounts,
		feeRate:   s.feeRate,
		tolerance: s.tolerance,
		weighting: weightProRata,
		risks:     make(map[int64]Risk[string, CategoricalEvent]),
	}, nil
}

// NewThresholdPool creates an empty threshold pool.
func NewThresholdPool(accounts AccountProvider, opts ...Option) (*ThresholdPool, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	tick := s.tick
	return &ThresholdPool{
		accounts:  accounts,
		feeRate:   s.feeRate,
		tolerance: s.tolerance,
		weighting: weightInverseDistance,
		probe: func(levels []int64) []int64 {
			if len(levels) == 0 {
				return levels
			}
			lo, hi := levels[0], levels[len(levels)-1]
			out := make([]int64, 0, len(levels)+2)
			out = append(out, lo-tick)
			out = append(out, levels...)
			return append(out, hi+tick)
		},
		risks: make(map[int64]Risk[int64, ThresholdEvent]),
	}, nil
}

// Stake accepts a new risk into the ledger and returns its transaction id.
// Ids are assigned monotonically. Rejects before any ledger mutation.
func (p *Pool[L, E]) Stake(event E, amount decimal.Decimal, owner string) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidStake, amount)
	}

	id := p.nextID
	p.risks[id] = Risk[L, E]{
		Event: event,
		Position: Position{
			ID:           id,
			Amount:       amount,
			OwnerAccount: owner,
			FeeAccount:   p.accounts.PoolAccount(),
		},
	}
	p.nextID++
	return id, nil
}

// Len returns the number of risks in the ledger.
func (p *Pool[L, E]) Len() int { return len(p.risks) }

// FeeRate returns the pool's fee rate.
func (p *Pool[L, E]) FeeRate() decimal.Decimal { return p.feeRate }

// Tolerance returns the conservation tolerance ε.
func (p *Pool[L, E]) Tolerance() decimal.Decimal { return p.tolerance }

// Accounts returns the pool's account provider.
func (p *Pool[L, E]) Accounts() AccountProvider { return p.accounts }

// TotalPool returns the sum of all staked amounts.
func (p *Pool[L, E]) TotalPool() decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.risks {
		total = total.Add(r.Position.Amount)
	}
	return total
}

// Fees returns the fee taken from the pool: TotalPool * feeRate.
func (p *Pool[L, E]) Fees() decimal.Decimal {
	return p.TotalPool().Mul(p.feeRate)
}

// Distributable returns the pool value available to winners after fees.
func (p *Pool[L, E]) Distributable() decimal.Decimal {
	return p.TotalPool().Mul(decimal.NewFromInt(1).Sub(p.feeRate))
}

// TotalWinningAmount returns the sum of stakes that win at the given level.
func (p *Pool[L, E]) TotalWinningAmount(level L) decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.risks {
		total = total.Add(r.WinningAmount(level))
	}
	return total
}

// CountWinningRisks returns how many risks win at the given level.
func (p *Pool[L, E]) CountWinningRisks(level L) int {
	n := 0
	for _, r := range p.risks {
		if r.Event.IsWinner(level) {
			n++
		}
	}
	return n
}

// CategoryBreakdown sums staked amounts grouped by category. Categories
// derive from the side of the bet, not from any resolved outcome, so this
// is well-defined before resolution.
func (p *Pool[L, E]) CategoryBreakdown() map[string]decimal.Decimal {
	breakdown := make(map[string]decimal.Decimal)
	for _, r := range p.risks {
		cat := r.Event.Category()
		breakdown[cat] = breakdown[cat].Add(r.Position.Amount)
	}
	return breakdown
}

// Levels returns the distinct staked levels in ascending order. Numeric
// pools additionally get one boundary probe under the minimum and one over
// the maximum, so a payoff sweep crosses every regime change.
func (p *Pool[L, E]) Levels() []L {
	if len(p.risks) == 0 {
		return nil
	}
	seen := make(map[L]struct{}, len(p.risks))
	levels := make([]L, 0, len(p.risks))
	for _, r := range p.risks {
		l := r.Event.Level()
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			levels = append(levels, l)
		}
	}
	slices.Sort(levels)
	if p.probe != nil {
		levels = p.probe(levels)
	}
	return levels
}

// PoolWinningAmount sums the total winning amount across every enumerated
// level. Used for sweep-style diagnostics, not settlement.
func (p *Pool[L, E]) PoolWinningAmount() decimal.Decimal {
	total := decimal.Zero
	for _, level := range p.Levels() {
		total = total.Add(p.TotalWinningAmount(level))
	}
	return total
}

// Positions returns a snapshot of all ledger positions in ascending id
// order.
func (p *Pool[L, E]) Positions() []Position {
	ids := p.sortedIDs()
	positions := make([]Position, 0, len(ids))
	for _, id := range ids {
		positions = append(positions, p.risks[id].Position)
	}
	return positions
}

// Risks returns a snapshot of all ledger risks in ascending id order.
func (p *Pool[L, E]) Risks() []Risk[L, E] {
	ids := p.sortedIDs()
	risks := make([]Risk[L, E], 0, len(ids))
	for _, id := range ids {
		risks = append(risks, p.risks[id])
	}
	return risks
}

// Settle determines the winners at the resolved outcome and computes their
// payouts with the pool kind's settlement rule. The ledger is not mutated:
// payouts are set on copies, so settling twice on an unchanged ledger
// yields identical records.
//
// A degenerate settlement — no winners — returns an empty result and skips
// the conservation checks, which would be vacuous.
func (p *Pool[L, E]) Settle(outcome L) ([]Settlement[L, E], error) {
	if p.weighting == weightInverseDistance {
		return p.settleInverseDistance(outcome)
	}
	return p.settleProRata(outcome)
}

// settleProRata distributes the pool after fees in proportion to stake:
// every winner receives the same multiple of their amount.
func (p *Pool[L, E]) settleProRata(outcome L) ([]Settlement[L, E], error) {
	winningStake := p.TotalWinningAmount(outcome)
	if winningStake.IsZero() {
		return nil, nil
	}

	distributable := p.Distributable()
	payoff := distributable.Div(winningStake)

	var winners []Settlement[L, E]
	totalPayout := decimal.Zero

	for _, id := range p.sortedIDs() {
		r := p.risks[id]
		if !r.Event.IsWinner(outcome) {
			continue
		}
		s := Settlement[L, E]{Risk: r}
		s.PoolShare = r.Position.Amount.Div(distributable)
		s.WinningsShare = r.Position.Amount.Div(winningStake)
		s.Payoff = payoff
		s.Position.Payout = r.Position.Amount.Mul(payoff)
		totalPayout = totalPayout.Add(s.Position.Payout)
		winners = append(winners, s)
	}

	if err := p.checkConservation("payout + fees", p.TotalPool(), totalPayout.Add(p.Fees())); err != nil {
		return nil, err
	}
	return winners, nil
}

// settleInverseDistance runs the two-pass distance-weighted settlement.
// Pass 1 computes the flat pro-rata (prima facie) payouts and accumulates
// the inverse distances; pass 2 redistributes the winning stake itself by
// normalized inverse distance. The reweighting is zero-sum among winners:
// the fee and the total paid out are unchanged by pass 2.
func (p *Pool[L, E]) settleInverseDistance(outcome L) ([]Settlement[L, E], error) {
	winningStake := p.TotalWinningAmount(outcome)
	if winningStake.IsZero() {
		return nil, nil
	}

	distributable := p.Distributable()
	primaFacie := distributable.Div(winningStake)

	var winners []Settlement[L, E]
	totalInverse := decimal.Zero
	totalPrimaFacie := decimal.Zero

	for _, id := range p.sortedIDs() {
		r := p.risks[id]
		if !r.Event.IsWinner(outcome) {
			continue
		}
		if r.Event.Level() == outcome {
			// Equality is a loss on both sides; a winner here means the
			// winner predicate is broken.
			return nil, fmt.Errorf("%w: tx %d", ErrZeroDistance, id)
		}
		s := Settlement[L, E]{Risk: r}
		s.PoolShare = r.Position.Amount.Div(distributable)
		s.WinningsShare = r.Position.Amount.Div(winningStake)
		s.PrimaFaciePayoff = primaFacie
		s.PrimaFaciePayout = r.Position.Amount.Mul(primaFacie)
		s.InverseDistance = r.Event.InverseDistanceWeight(outcome)
		totalInverse = totalInverse.Add(s.InverseDistance)
		totalPrimaFacie = totalPrimaFacie.Add(s.PrimaFaciePayout)
		winners = append(winners, s)
	}

	totalPayout := decimal.Zero
	for i := range winners {
		s := &winners[i]
		s.NormalizedInverseDistance = s.InverseDistance.Div(totalInverse)
		s.RedistributedAmount = s.NormalizedInverseDistance.Mul(winningStake)
		s.Position.Payout = s.RedistributedAmount.Mul(s.PrimaFaciePayoff)
		s.Payoff = s.Position.Payout.Div(s.Position.Amount)
		totalPayout = totalPayout.Add(s.Position.Payout)
	}

	if err := p.checkConservation("prima facie payout + fees", p.TotalPool(), totalPrimaFacie.Add(p.Fees())); err != nil {
		return nil, err
	}
	if err := p.checkConservation("reweighted payout", totalPrimaFacie, totalPayout); err != nil {
		return nil, err
	}
	return winners, nil
}

// ProFormaReturn answers "if I staked amount on event right now, what
// would I win at this outcome?". The simulation runs on an isolated copy
// of the ledger; the live ledger and its id counter are untouched. A
// hypothetical stake that loses yields a zero-valued settlement, not an
// error.
func (p *Pool[L, E]) ProFormaReturn(event E, amount decimal.Decimal, outcome L) (Settlement[L, E], error) {
	scratch := p.clone()
	id, err := scratch.Stake(event, amount, HypotheticalOwner)
	if err != nil {
		return Settlement[L, E]{}, err
	}
	winners, err := scratch.Settle(outcome)
	if err != nil {
		return Settlement[L, E]{}, err
	}
	for _, s := range winners {
		if s.Position.ID == id {
			return s, nil
		}
	}
	// Not among the winners: a bust, not a failure.
	return Settlement[L, E]{}, nil
}

// PayoffCurve sweeps ProFormaReturn across every enumerated level,
// producing the full payoff profile for a hypothetical stake.
func (p *Pool[L, E]) PayoffCurve(event E, amount decimal.Decimal) (map[L]decimal.Decimal, error) {
	curve := make(map[L]decimal.Decimal)
	for _, level := range p.Levels() {
		s, err := p.ProFormaReturn(event, amount, level)
		if err != nil {
			return nil, err
		}
		curve[level] = s.Payoff
	}
	return curve, nil
}

// clone copies the ledger into a scratch pool for pro-forma simulation.
func (p *Pool[L, E]) clone() *Pool[L, E] {
	c := *p
	c.risks = make(map[int64]Risk[L, E], len(p.risks))
	for id, r := range p.risks {
		c.risks[id] = r
	}
	return &c
}

func (p *Pool[L, E]) sortedIDs() []int64 {
	ids := make([]int64, 0, len(p.risks))
	for id := range p.risks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// checkConservation verifies |expected - actual| < ε.
func (p *Pool[L, E]) checkConservation(check string, expected, actual decimal.Decimal) error {
	if expected.Sub(actual).Abs().LessThan(p.tolerance) {
		return nil
	}
	return &ConservationError{Check: check, Expected: expected, Actual: actual}
}
