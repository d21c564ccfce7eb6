package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"traderbot/internal/api"
	"traderbot/internal/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(20).Align(lipgloss.Right)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	longStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func signed(v float64, format string) string {
	s := fmt.Sprintf(format, v)
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return valueStyle.Render(s)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s  %s\n", labelStyle.Render(label), value)
}

// renderReport prints a backtest summary.
func renderReport(w io.Writer, resp *api.BacktestResponse) {
	run := resp.Run
	r := run.Report
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Backtest %s %s", run.Strategy, run.Symbol)))

	row(w, "run", dimStyle.Render(run.ID))
	if len(resp.Curve) > 0 {
		first, last := resp.Curve[0].Timestamp, resp.Curve[len(resp.Curve)-1].Timestamp
		row(w, "period", valueStyle.Render(first.Format(time.DateOnly)+" .. "+last.Format(time.DateOnly)))
	}
	row(w, "bars", valueStyle.Render(fmt.Sprintf("%d", r.Bars)))
	row(w, "initial equity", valueStyle.Render(fmt.Sprintf("%.2f", r.InitialEquity)))
	row(w, "final equity", signed(r.FinalEquity-r.InitialEquity, "%+.2f")+valueStyle.Render(fmt.Sprintf("  (%.2f)", r.FinalEquity)))
	row(w, "total return", signed(r.TotalReturn*100, "%+.2f%%"))
	row(w, "annualised return", signed(r.AnnualizedReturn*100, "%+.2f%%"))
	row(w, "volatility", valueStyle.Render(fmt.Sprintf("%.4f", r.Volatility)))
	row(w, "sharpe ratio", signed(r.SharpeRatio, "%.4f"))
	row(w, "max drawdown", signed(r.MaxDrawdown*100, "%.2f%%"))
	row(w, "trades", valueStyle.Render(fmt.Sprintf("%d (%d closed)", r.TotalTrades, r.ClosedTrades)))
	row(w, "win rate", valueStyle.Render(fmt.Sprintf("%.2f%%", r.WinRate*100)))
	row(w, "profit factor", valueStyle.Render(fmt.Sprintf("%.4f", r.ProfitFactor)))

	if len(resp.Trades) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  %-10s  %10s  %-10s  %10s  %10s  %10s", "entry", "price", "exit", "price", "qty", "pnl")))
	for _, t := range resp.Trades {
		exit, exitPx, pnl := "open", "", dimStyle.Render(fmt.Sprintf("%10s", "-"))
		if !t.IsOpen() {
			exit = t.ExitTime.Format(time.DateOnly)
			exitPx = fmt.Sprintf("%.2f", t.ExitPrice)
			pnl = signed(t.PnL, "%+10.2f")
		}
		fmt.Fprintf(w, "  %-10s  %10.2f  %-10s  %10s  %10d  %s\n",
			t.EntryTime.Format(time.DateOnly), t.EntryPrice, exit, exitPx, t.Qty, pnl)
	}
}

// signalRow is one line of the signals table.
type signalRow struct {
	Time   time.Time
	Close  float64
	Fast   float64
	Slow   float64
	Signal domain.Signal
}

// renderSignals prints the newest signal rows. Fast and Slow are omitted
// when hasMA is false; NaN averages print as "-".
func renderSignals(w io.Writer, title string, rows []signalRow, hasMA bool) {
	fmt.Fprintln(w, titleStyle.Render(title))
	header := fmt.Sprintf("  %-20s  %10s", "time", "close")
	if hasMA {
		header += fmt.Sprintf("  %10s  %10s", "fast", "slow")
	}
	header += "  signal"
	fmt.Fprintln(w, headerStyle.Render(header))
	for _, r := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "  %-20s  %10.2f", r.Time.Format("2006-01-02 15:04"), r.Close)
		if hasMA {
			fmt.Fprintf(&b, "  %s  %s", maCell(r.Fast), maCell(r.Slow))
		}
		style := dimStyle
		if r.Signal == domain.SignalLong {
			style = longStyle
		}
		fmt.Fprintf(&b, "  %s", style.Render(r.Signal.String()))
		fmt.Fprintln(w, b.String())
	}
}

func maCell(v float64) string {
	if math.IsNaN(v) {
		return dimStyle.Render(fmt.Sprintf("%10s", "-"))
	}
	return fmt.Sprintf("%10.2f", v)
}

// renderRuns prints stored backtest runs.
func renderRuns(w io.Writer, runs []domain.BacktestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no stored runs"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  %-36s  %-16s  %-12s  %-8s  %9s  %9s  %6s",
		"id", "created", "strategy", "symbol", "return", "drawdown", "trades")))
	for _, r := range runs {
		fmt.Fprintf(w, "  %-36s  %-16s  %-12s  %-8s  %s  %s  %6d\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Strategy, r.Symbol,
			signed(r.Report.TotalReturn*100, "%+8.2f%%"), signed(r.Report.MaxDrawdown*100, "%8.2f%%"),
			r.Report.TotalTrades)
	}
}
