package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
)

// Report is everything rendered into the markdown report
type Report struct {
	RunID          string                 `json:"run_id,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Source         domain.DataSource      `json:"source"`
	Summary        *Summary               `json:"summary"`
	Top            []domain.ScoredAsset   `json:"top"`
	TopFallback    bool                   `json:"top_fallback"`
	Bottom         []domain.ScoredAsset   `json:"bottom"`
	BottomFallback bool                   `json:"bottom_fallback"`
	Comparison     *decoupling.Comparison `json:"comparison,omitempty"`
}

// ListSize is the number of loans in the top and bottom lists
const ListSize = 5

// NewReport assembles a report from the scored portfolio
func NewReport(scored []domain.ScoredAsset, source domain.DataSource, comparison *decoupling.Comparison, now time.Time) *Report {
	top, topFallback := TopLoans(scored, ListSize)
	bottom, bottomFallback := BottomLoans(scored, ListSize)
	return &Report{
		GeneratedAt:    now,
		Source:         source,
		Summary:        Summarize(scored),
		Top:            top,
		TopFallback:    topFallback,
		Bottom:         bottom,
		BottomFallback: bottomFallback,
		Comparison:     comparison,
	}
}

var (
	heavyRule = strings.Repeat("=", 80)
	lightRule = strings.Repeat("-", 80)
)

// Markdown renders the report
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString(heavyRule + "\n")
	b.WriteString("# Green Finance Portfolio Risk Summary\n\n")
	fmt.Fprintf(&b, "Total Portfolio Exposure: %s Million\n\n", formatThousands(r.Summary.TotalExposure.StringFixed(2)))
	fmt.Fprintf(&b, "Loans analyzed: %d (source: %s)  \n", r.Summary.LoanCount, r.Source)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	b.WriteString(heavyRule + "\n\n")

	rows := make([][]string, 0, len(r.Summary.Tiers))
	for _, t := range r.Summary.Tiers {
		rows = append(rows, []string{
			t.Label,
			t.TotalExposure.StringFixed(2),
			fmt.Sprintf("%d", t.Count),
			fmt.Sprintf("%.2f", t.AvgScore),
			fmt.Sprintf("%.2f", t.ExposurePct),
		})
	}
	writeTable(&b, []string{"Risk Tier", "Total Exposure", "Count", "Avg Score", "Exposure %"}, rows)

	b.WriteString("\n" + heavyRule + "\n")
	b.WriteString("## Top 5 Loans: Best Green Finance Alignment (Score >= 80)\n\n")
	if r.TopFallback {
		b.WriteString("(No A-rated loans found, showing top 5 overall)\n\n")
	}
	writeLoanTable(&b, r.Top)

	b.WriteString("\n" + lightRule + "\n")
	b.WriteString("## Bottom 5 Loans: Worst Green Finance Alignment (Candidates for Divestment)\n\n")
	if r.BottomFallback {
		b.WriteString("(No D-rated loans found, showing bottom 5 overall)\n\n")
	}
	writeLoanTable(&b, r.Bottom)

	if c := r.Comparison; c != nil {
		b.WriteString("\n" + lightRule + "\n")
		b.WriteString("## Decoupling Analysis: Full vs Ex-Tier-D Portfolio\n\n")
		writeTable(&b,
			[]string{"Portfolio", "Assets", "Annual Return", "Annual Volatility", "Sharpe"},
			[][]string{
				resultRow("Full", c.Full.AssetIDs, c.Full.AnnualReturn, c.Full.AnnualVolatility, c.Full.Sharpe),
				resultRow("Decoupled", c.Decoupled.AssetIDs, c.Decoupled.AnnualReturn, c.Decoupled.AnnualVolatility, c.Decoupled.Sharpe),
			})
		b.WriteString("\n")
		fmt.Fprintf(&b, "Excluded Tier %s loans: %d\n\n", c.ExcludedTier, len(c.ExcludedIDs))
		if c.Passed() {
			if c.ImprovementPct != nil {
				fmt.Fprintf(&b, "Verdict: PASS. Decoupling improved the Sharpe ratio by %.2f%%.\n", *c.ImprovementPct)
			} else {
				b.WriteString("Verdict: PASS. Decoupling improved the Sharpe ratio.\n")
			}
		} else {
			b.WriteString("Verdict: FAIL. Decoupling did not improve the Sharpe ratio.\n")
		}
		b.WriteString("\nReturns are simulated, not observed market data.\n")
	}

	b.WriteString("\n" + heavyRule + "\n")
	return b.String()
}

func resultRow(name string, ids []string, ret, vol, sharpe float64) []string {
	return []string{
		name,
		fmt.Sprintf("%d", len(ids)),
		fmt.Sprintf("%.2f%%", ret*100),
		fmt.Sprintf("%.2f%%", vol*100),
		fmt.Sprintf("%.4f", sharpe),
	}
}

func writeLoanTable(b *strings.Builder, loans []domain.ScoredAsset) {
	rows := make([][]string, 0, len(loans))
	for _, l := range loans {
		rows = append(rows, []string{
			l.BorrowerName,
			l.Sector,
			fmt.Sprintf("%.2f", l.OutstandingAmountMn),
			fmt.Sprintf("%.2f", l.Score),
			l.Tier.Label(),
		})
	}
	writeTable(b, []string{"Borrower", "Sector", "Outstanding (Mn)", "Green Finance Score", "Risk Tier"}, rows)
}

// writeTable renders a GitHub-flavoured markdown table with padded columns
func writeTable(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(cells []string) {
		b.WriteString("|")
		for i, cell := range cells {
			fmt.Fprintf(b, " %-*s |", widths[i], cell)
		}
		b.WriteString("\n")
	}

	writeRow(header)
	b.WriteString("|")
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2) + "|")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
}

// formatThousands inserts commas into the integer part of a fixed-point string
func formatThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}

	var out strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return sign + out.String() + frac
}
