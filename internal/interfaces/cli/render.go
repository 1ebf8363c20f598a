package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/infrastructure/batch"
)

var (
	accent  = lipgloss.Color("#2563EB")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	passStyle   = lipgloss.NewStyle().Foreground(success)
	failStyle   = lipgloss.NewStyle().Foreground(danger)
	warnStyle   = lipgloss.NewStyle().Foreground(warning)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

const statusColumn = 1

func renderProgress(p batch.Progress) string {
	return dimStyle.Render(fmt.Sprintf("[%s] %s %d/%d processed, %d ok, %d failed (%s)",
		p.CurrentPhase, p.State, p.ProcessedUnits, p.TotalUnits, p.SuccessfulUnits, p.FailedUnits,
		p.TimeElapsed.Round(time.Millisecond)))
}

// renderResults prints one row per finished quote in completion order
func renderResults(results []batch.UnitResult, valuations []customs.QuoteTaxResult) string {
	byQuote := make(map[string]customs.QuoteTaxResult, len(valuations))
	for _, v := range valuations {
		byQuote[v.QuoteID] = v
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		taxes := "-"
		if v, ok := byQuote[r.UnitID]; ok {
			taxes = formatTaxes(v)
		}
		rows = append(rows, []string{
			r.UnitID,
			status,
			fmt.Sprintf("%d/%d", r.ItemsSuccessful, r.ItemsProcessed),
			strconv.Itoa(r.Attempts),
			r.Duration.Round(time.Millisecond).String(),
			taxes,
			r.Error,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("QUOTE", "STATUS", "ITEMS", "ATTEMPTS", "DURATION", "TOTAL TAXES", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(rows) {
				if rows[row][statusColumn] == "ok" {
					return cellStyle.Foreground(success)
				}
				return cellStyle.Foreground(danger)
			}
			return cellStyle
		})
	return t.String()
}

func formatTaxes(v customs.QuoteTaxResult) string {
	s := v.Summary.TotalTaxes.StringFixed(2)
	if len(v.Items) > 0 {
		s += " " + string(v.Items[0].Currency)
	}
	if len(v.Failures) > 0 {
		s += fmt.Sprintf(" (%d items failed)", len(v.Failures))
	}
	if v.Summary.FallbackConversions > 0 {
		s += " *"
	}
	return s
}

func renderSummary(p batch.Progress, valuations []customs.QuoteTaxResult) string {
	var b strings.Builder
	state := passStyle.Render(string(p.State))
	switch p.State {
	case batch.StateCancelled:
		state = warnStyle.Render(string(p.State))
	case batch.StateFailed:
		state = failStyle.Render(string(p.State))
	}
	b.WriteString(boldStyle.Render("Run " + p.RunID))
	b.WriteString(" " + state + "\n")
	fmt.Fprintf(&b, "  %d/%d quotes processed, %d succeeded, %d failed in %s",
		p.ProcessedUnits, p.TotalUnits, p.SuccessfulUnits, p.FailedUnits, p.TimeElapsed.Round(time.Millisecond))
	for _, v := range valuations {
		if v.Summary.FallbackConversions > 0 {
			b.WriteString("\n" + dimStyle.Render("  * a minimum valuation used a fallback exchange rate"))
			break
		}
	}
	return b.String()
}

func renderConversion(r exchange.ConversionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s USD -> %s %s\n",
		r.USDAmount.String(), boldStyle.Render(r.ConvertedAmount.String()), r.OriginCurrency)
	fmt.Fprintf(&b, "  rate %s (%s), rounding %s, at %s",
		r.ExchangeRate.String(), r.CacheSource, r.RoundingMethod, r.ConversionTimestamp.Format(time.RFC3339))
	if r.Warning != "" {
		b.WriteString("\n" + warnStyle.Render("  warning: "+r.Warning))
	}
	return b.String()
}
