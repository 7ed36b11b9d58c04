// Command poolsim runs two worked settlement scenarios against the
// in-memory engine and prints the results as tables: a categorical
// credit-event pool settled pro-rata, and a threshold price pool settled
// by inverse distance, followed by a payoff curve sweep.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/trustpooler/pool-engine/internal/accounts"
	"github.com/trustpooler/pool-engine/internal/pool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "poolsim:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := runCategorical(); err != nil {
		return err
	}
	return runThreshold()
}

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func runCategorical() error {
	p, err := pool.NewCategoricalPool(accounts.Default())
	if err != nil {
		return err
	}

	stakes := []struct {
		owner    string
		amount   decimal.Decimal
		category string
	}{
		{"barney", d(500), "default"},
		{"barney", d(2500), "default"},
		{"arnold", d(10000), "no_default"},
		{"arnold", d(5000), "no_default"},
	}
	for _, s := range stakes {
		if _, err := p.Stake(pool.NewCategoricalEvent(s.category), s.amount, s.owner); err != nil {
			return err
		}
	}

	fmt.Println("== Categorical pool, outcome \"default\" ==")
	fmt.Printf("total %s | fees %s | distributable %s\n",
		money(p.TotalPool()), money(p.Fees()), money(p.Distributable()))

	winners, err := p.Settle("default")
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Tx", "Owner", "Category", "Stake", "Payoff", "Payout")
	for _, w := range winners {
		table.Append(
			fmt.Sprintf("%d", w.Position.ID),
			w.Position.OwnerAccount,
			w.Event.Category(),
			money(w.Position.Amount),
			w.Payoff.StringFixed(4),
			money(w.Position.Payout),
		)
	}
	table.Render()
	fmt.Println()
	return nil
}

func runThreshold() error {
	p, err := pool.NewThresholdPool(accounts.Default())
	if err != nil {
		return err
	}

	stakes := []struct {
		owner  string
		amount decimal.Decimal
		side   pool.Side
		price  int64
	}{
		{"barney", d(500), pool.SideLong, 50},
		{"barney", d(250), pool.SideLong, 55},
		{"barney", d(1000), pool.SideLong, 60},
		{"arnold", d(700), pool.SideShort, 60},
		{"arnold", d(900), pool.SideShort, 55},
		{"arnold", d(1000), pool.SideShort, 50},
		{"arnold", d(1500), pool.SideShort, 40},
	}
	for _, s := range stakes {
		if _, err := p.Stake(pool.NewThresholdEvent(s.side, s.price), s.amount, s.owner); err != nil {
			return err
		}
	}

	const outcome = int64(56)
	fmt.Printf("== Threshold pool, outcome %d ==\n", outcome)
	fmt.Printf("total %s | fees %s | distributable %s\n",
		money(p.TotalPool()), money(p.Fees()), money(p.Distributable()))

	winners, err := p.Settle(outcome)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Tx", "Owner", "Bet", "Stake", "PF payout", "Weight", "Redistributed", "Payout")
	for _, w := range winners {
		table.Append(
			fmt.Sprintf("%d", w.Position.ID),
			w.Position.OwnerAccount,
			fmt.Sprintf("%s@%d", w.Event.Category(), w.Event.Level()),
			money(w.Position.Amount),
			money(w.PrimaFaciePayout),
			w.NormalizedInverseDistance.StringFixed(4),
			money(w.RedistributedAmount),
			money(w.Position.Payout),
		)
	}
	table.Render()
	fmt.Println()

	// Payoff profile for a fresh Long@50 stake across every staked level.
	probe := pool.NewThresholdEvent(pool.SideLong, 50)
	curve, err := p.PayoffCurve(probe, d(500))
	if err != nil {
		return err
	}

	fmt.Println("== Payoff curve, hypothetical Long@50 for 500 ==")
	curveTable := tablewriter.NewWriter(os.Stdout)
	curveTable.Header("Level", "Payoff")
	for _, level := range p.Levels() {
		curveTable.Append(
			fmt.Sprintf("%d", level),
			curve[level].StringFixed(4),
		)
	}
	curveTable.Render()
	return nil
}
