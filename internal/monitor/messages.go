package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/rewired-gh/bandwatch/internal/session"
	"github.com/shopspring/decimal"
)

type summaryLine struct {
	instrument    models.Instrument
	state         models.AlertState
	band          models.Band
	previousClose float64
}

// thresholdPrice is the price at which the deviation from prev equals pct.
func thresholdPrice(prev, pct float64) float64 {
	p := decimal.NewFromFloat(prev).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct)))
	return p.InexactFloat64()
}

func formatPrice(v float64, precision int32) string {
	return decimal.NewFromFloat(v).Round(precision).StringFixed(precision)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func startMessage(count int, interval time.Duration) string {
	return fmt.Sprintf("🚨 Market monitoring started: %d instruments, checking every %s.", count, interval)
}

func summaryMessage(lines []summaryLine, precision int32) string {
	var sb strings.Builder
	sb.WriteString("📋 Monitoring summary\n")
	for _, l := range lines {
		name := l.instrument.Name
		switch {
		case l.state == models.Skipped:
			fmt.Fprintf(&sb, "\n⚠️ %s: band unavailable, not monitored\n", name)
		case l.previousClose <= 0:
			fmt.Fprintf(&sb, "\n❌ %s: previous close unavailable (band %s ~ %s)\n",
				name, formatPercent(l.band.Lower()), formatPercent(l.band.Upper()))
		default:
			buy := thresholdPrice(l.previousClose, l.band.Lower())
			sell := thresholdPrice(l.previousClose, l.band.Upper())
			fmt.Fprintf(&sb, "\n📌 %s\n", name)
			fmt.Fprintf(&sb, "  Previous close: %s\n", formatPrice(l.previousClose, precision))
			fmt.Fprintf(&sb, "  Buy below: %s (%s)\n", formatPrice(buy, precision), formatPercent(l.band.Lower()))
			fmt.Fprintf(&sb, "  Sell above: %s (%s)\n", formatPrice(sell, precision), formatPercent(l.band.Upper()))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func alertMessage(a *models.Alert, precision int32) string {
	label := "Buy"
	if a.Side == models.SideSell {
		label = "Sell"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 %s signal: %s\n", label, a.Instrument.Name)
	fmt.Fprintf(&sb, "Previous close: %s\n", formatPrice(a.PreviousClose, precision))
	fmt.Fprintf(&sb, "%s threshold: %s (%s)\n", label, formatPrice(a.ThresholdPrice, precision), formatPercent(a.Threshold))
	fmt.Fprintf(&sb, "Current price: %s (%s)", formatPrice(a.CurrentPrice, precision), formatPercent(a.Deviation))
	return sb.String()
}

func terminationMessage(g session.Gate) string {
	return fmt.Sprintf("⏹️ Market closed (%s), monitoring stopped.", g.Close)
}

func completionMessage() string {
	return "✅ Every instrument has alerted, monitoring finished."
}

func errorMessage(name string, err error) string {
	return fmt.Sprintf("❌ %s check failed: %v", name, err)
}
