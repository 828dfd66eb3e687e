package main

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/factory"
	"github.com/alanyoungcy/marketindexer/internal/units"
)

var (
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	yes     = color.New(color.FgGreen).SprintFunc()
	no      = color.New(color.FgRed).SprintFunc()
	pending = color.New(color.FgYellow).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
)

// oneEther scales share ratios to the 1e18 fixed point FormatOdds takes.
var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type marketRow struct {
	ID    *big.Int
	Info  factory.MarketInfo
	Pools factory.Pools
}

func outcomeLabel(o domain.Outcome) string {
	if o == domain.OutcomeYes {
		return yes(o.String())
	}
	return no(o.String())
}

// yesOdds is the YES share of all issued shares, or 50% before any bet.
func yesOdds(p factory.Pools) string {
	yesShares, noShares := new(big.Int), new(big.Int)
	if p.Yes != nil {
		yesShares.Set(p.Yes)
	}
	if p.No != nil {
		noShares.Set(p.No)
	}
	total := new(big.Int).Add(yesShares, noShares)
	if total.Sign() == 0 {
		return units.FormatOdds(new(big.Int).Div(oneEther, big.NewInt(2)))
	}
	odds := new(big.Int).Mul(yesShares, oneEther)
	return units.FormatOdds(odds.Quo(odds, total))
}

func marketStatus(info factory.MarketInfo, now time.Time) string {
	switch {
	case info.Resolved:
		return "resolved " + outcomeLabel(domain.Outcome(info.WinningOutcome))
	case info.ResolutionTime != nil && info.ResolutionTime.Int64() <= now.Unix():
		return pending("awaiting resolution")
	default:
		return pending("open")
	}
}

// renderMarkets writes one aligned row per market.
func renderMarkets(w io.Writer, rows []marketRow, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSTATUS\tPOOL\tYES\tQUESTION")
	for _, r := range rows {
		resolves := ""
		if r.Info.ResolutionTime != nil {
			resolves = time.Unix(r.Info.ResolutionTime.Int64(), 0).UTC().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s %s\n",
			r.ID,
			r.Info.Category,
			marketStatus(r.Info, now),
			units.FormatEther(r.Pools.Total, 4),
			yesOdds(r.Pools),
			r.Info.Question,
			dim("("+resolves+")"),
		)
	}
	return tw.Flush()
}
