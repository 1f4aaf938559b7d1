package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/cardano-portfolio/internal/types"
	"github.com/cardano-portfolio/internal/valuation"
)

// FormatAlertMessage renders an alert payload as plain text for the notification sink
func FormatAlertMessage(p *AlertPayload) string {
	var b strings.Builder

	name := p.StakeAddress
	if p.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", p.DisplayName, shortAddress(p.StakeAddress))
	}
	fmt.Fprintf(&b, "Allocation drift: %s\n", name)
	fmt.Fprintf(&b, "Snapshot %s, basis %s, threshold %s pp\n",
		p.Bucket.UTC().Format("2006-01-02 15:04 UTC"), p.Basis, trimFloat(p.Threshold, 2))
	fmt.Fprintf(&b, "Total value: %s %s\n", trimFloat(p.TotalValue, 2), basisLabel(p.Basis))

	b.WriteString("\nDeviations:\n")
	for _, d := range valuation.Triggered(p.Deviations) {
		fmt.Fprintf(&b, "- %s: %s%% now, target %s%% (%s pp)\n",
			d.Unit, trimFloat(d.CurrentPct, 2), trimFloat(d.TargetPct, 2), signed(d.DiffPct))
	}

	if len(p.Plan.Suggestions) > 0 {
		b.WriteString("\nSuggested swaps:\n")
		for _, s := range p.Plan.Suggestions {
			fmt.Fprintf(&b, "- %s %s -> %s %s (value %s)\n",
				trimFloat(s.FromQtyHuman, 6), s.FromUnit, trimFloat(s.ToQtyHuman, 6), s.ToUnit, trimFloat(s.TradeValue, 2))
		}
	}
	if len(p.Plan.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range p.Plan.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func basisLabel(basis types.ThresholdBasis) string {
	switch basis {
	case types.BasisADA:
		return "ADA"
	case types.BasisBTC:
		return "BTC"
	case types.BasisHoldings:
		return "units"
	default:
		return "USD"
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-6:]
}

func signed(v float64) string {
	if v > 0 {
		return "+" + trimFloat(v, 2)
	}
	return trimFloat(v, 2)
}

// trimFloat formats v with at most places decimals and no trailing zeros
func trimFloat(v float64, places int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	s := fmt.Sprintf("%.*f", places, v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
