package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gtoxlili/echoStock/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(16)

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

func money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	switch {
	case d.IsPositive():
		return gainStyle.Render("+" + s)
	case d.IsNegative():
		return lossStyle.Render(s)
	}
	return s
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// Render 终端展示用的收益报告
func Render(r entity.ProfitReport) string {
	summary := []string{
		row("Generated", r.GeneratedAt.Format("2006-01-02 15:04:05")),
		row("Trades", fmt.Sprintf("%d (buy %d / sell %d, simulated %d)", r.TotalTrades, r.Buys, r.Sells, r.Simulated)),
		row("Win rate", fmt.Sprintf("%.2f%% (%d wins / %d losses)", r.WinRate, r.Wins, r.Losses)),
		row("Realized", money(r.Realized)),
		row("Unrealized", money(r.Unrealized)),
		row("Total P&L", money(r.Total)),
		row("Largest win", money(r.LargestWin)),
		row("Largest loss", money(r.LargestLoss)),
		row("Cash", r.Cash.StringFixed(2)),
		row("Equity", r.Equity.StringFixed(2)),
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Profit Report"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join(summary, "\n")))
	b.WriteString("\n")

	if len(r.BySymbol) > 0 {
		lines := make([]string, 0, len(r.BySymbol))
		for _, sp := range r.BySymbol {
			lines = append(lines, fmt.Sprintf("%-12s trades %-3d qty %-6d avg %-10s mark %-10s realized %s  unrealized %s",
				sp.Symbol, sp.Trades, sp.Quantity, sp.AvgPrice.StringFixed(2), sp.Mark.StringFixed(2),
				money(sp.Realized), money(sp.Unrealized)))
		}
		b.WriteString(titleStyle.Render("By Symbol"))
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	if len(r.Recent) > 0 {
		lines := make([]string, 0, len(r.Recent))
		for _, rec := range r.Recent {
			lines = append(lines, fmt.Sprintf("%s  %-4s %-12s %6d @ %-10s %-9s pnl %s",
				rec.At.Format("01-02 15:04"), rec.Side, rec.Symbol, rec.Quantity, rec.Price.StringFixed(2), rec.Mode,
				money(rec.RealizedPnL)))
		}
		b.WriteString(titleStyle.Render("Recent Trades"))
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

// Fields 周期性日志使用的精简字段
func Fields(r entity.ProfitReport) logrus.Fields {
	return logrus.Fields{
		"trades":     r.TotalTrades,
		"wins":       r.Wins,
		"losses":     r.Losses,
		"win_rate":   fmt.Sprintf("%.2f%%", r.WinRate),
		"realized":   r.Realized.StringFixed(2),
		"unrealized": r.Unrealized.StringFixed(2),
		"total":      r.Total.StringFixed(2),
		"cash":       r.Cash.StringFixed(2),
		"equity":     r.Equity.StringFixed(2),
	}
}
