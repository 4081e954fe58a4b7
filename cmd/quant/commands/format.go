package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wonny/aegis-defense/internal/api/handlers"
	"github.com/wonny/aegis-defense/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	singleLine = "───────────────────────────────────────────────────────────"
	doubleLine = "═══════════════════════════════════════════════════════════"
)

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(w io.Writer, key string, value string, keyWidth int) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", total))
}

// PrintTableRow prints a table row
func PrintTableRow(w io.Writer, values []string, widths []int) {
	cells := make([]string, len(values))
	for i, val := range values {
		cells[i] = fmt.Sprintf("%-*s", widths[i], val)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// formatRatio renders optional metrics, "-" for no signal
func formatRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

var classificationColumns = []string{"SYMBOL", "CLASS", "SOURCE", "DOWN", "UP", "RATIO", "WIN", "MAX DD", "N"}
var classificationWidths = []int{8, 10, 8, 8, 8, 8, 6, 8, 4}

func classificationRow(symbol string, rec contracts.ClassificationRecord) []string {
	row := []string{symbol, string(rec.Classification), string(rec.Source), "-", "-", "-", "-", "-", "-"}
	if m := rec.Metrics; m != nil {
		row[3] = fmt.Sprintf("%.4f", m.DownsideCapture)
		row[4] = formatRatio(m.UpsideCapture)
		row[5] = formatRatio(m.CaptureRatio)
		row[6] = fmt.Sprintf("%.2f", m.WinRateInDrawdown)
		row[7] = fmt.Sprintf("%.4f", m.MaxDrawdown)
		row[8] = fmt.Sprintf("%d", m.EpisodesMeasured)
	}
	return row
}

// PrintResult prints the summary and per-class table of a run
func PrintResult(w io.Writer, result *contracts.BacktestResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  Drawdown Defense Backtest  %s\n", result.RunDate.Format("2006-01-02"))
	fmt.Fprintln(w, singleLine)
	PrintKeyValue(w, "Processed", fmt.Sprintf("%d", result.TickersProcessed), 16)
	PrintKeyValue(w, "Skipped", fmt.Sprintf("%d", result.TickersSkipped), 16)
	PrintKeyValue(w, "Drawdown months", fmt.Sprintf("%d", result.BenchmarkDrawdownMonths), 16)
	PrintKeyValue(w, "Errors", fmt.Sprintf("%d", len(result.Errors)), 16)
	fmt.Fprintln(w, singleLine)

	counts := result.ClassCounts()
	groups := handlers.SymbolsByClass(result)
	fmt.Fprintln(w)
	PrintTableHeader(w, classificationColumns, classificationWidths)
	for _, class := range contracts.DefenseClasses() {
		for _, symbol := range groups[class] {
			PrintTableRow(w, classificationRow(symbol, result.Classifications[symbol]), classificationWidths)
		}
	}

	fmt.Fprintln(w)
	parts := make([]string, 0, len(counts))
	for _, class := range contracts.DefenseClasses() {
		parts = append(parts, fmt.Sprintf("%s=%d", class, counts[class]))
	}
	fmt.Fprintf(w, "Classes: %s\n", strings.Join(parts, " "))

	if len(result.Skipped) > 0 {
		symbols := make([]string, 0, len(result.Skipped))
		for symbol := range result.Skipped {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		fmt.Fprintln(w, "\nSkipped:")
		for _, symbol := range symbols {
			fmt.Fprintf(w, "   • %-8s %s\n", symbol, result.Skipped[symbol])
		}
	}

	for _, e := range result.Errors {
		PrintWarning(w, e)
	}
	fmt.Fprintln(w, doubleLine)
}
