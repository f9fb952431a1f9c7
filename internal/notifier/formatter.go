package notifier

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"ForecastMailer/internal/model"
)

// FormatDigest formats a digest as a Telegram HTML message. Ticker blocks are
// separated by blank lines so SplitMessage can cut between them.
func FormatDigest(d *model.Digest) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📈 <b>Market Forecast Digest</b> | %s\n", html.EscapeString(d.RunDate)))
	if d.MarketOpenTime != "" {
		b.WriteString(fmt.Sprintf("🕐 Market opens: %s\n", html.EscapeString(d.MarketOpenTime)))
	}

	if len(d.Results) == 0 {
		b.WriteString("\nNo market data could be retrieved for this run.\n")
	}
	for _, r := range d.Results {
		b.WriteString("\n")
		b.WriteString(formatResult(r))
	}

	b.WriteString("\n<i>")
	b.WriteString(html.EscapeString(Disclaimer))
	b.WriteString("</i>\n")
	b.WriteString(fmt.Sprintf("Generated at %s", html.EscapeString(d.RunTime)))
	return b.String()
}

func formatResult(r model.TickerResult) string {
	var b strings.Builder
	q := r.Quote
	b.WriteString(fmt.Sprintf("%s <b>%s</b> (%s)\n", recEmoji(r.Assessment.Recommendation),
		html.EscapeString(r.Ticker.DisplayName()), html.EscapeString(r.Ticker.Symbol)))
	b.WriteString(fmt.Sprintf("Price: $%s (%s%%)\n", q.PriceText(), signedChange(q)))
	b.WriteString(fmt.Sprintf("52w: %s - %s\n", q.Low52wText(), q.High52wText()))
	b.WriteString(fmt.Sprintf("<b>%s</b> | target $%s\n", r.Assessment.Recommendation, r.Assessment.PriceTarget))
	b.WriteString(html.EscapeString(r.Assessment.KeyInsight))
	if r.Degraded {
		b.WriteString(" ⚠️")
	}
	b.WriteString("\n")
	return b.String()
}

func signedChange(q model.QuoteSnapshot) string {
	if q.PercentChange.IsPositive() {
		return "+" + q.ChangeText()
	}
	return q.ChangeText()
}

func recEmoji(r model.Recommendation) string {
	switch r {
	case model.Buy:
		return "🟢"
	case model.Sell:
		return "🔴"
	default:
		return "🟡"
	}
}

// FormatStatus formats the reply to a status command.
func FormatStatus(schedule, nextRun string, tickers []model.Ticker) string {
	syms := make([]string, 0, len(tickers))
	for _, t := range tickers {
		syms = append(syms, t.Symbol)
	}
	var b strings.Builder
	b.WriteString("📦 <b>Forecast service status</b>\n\n")
	b.WriteString(fmt.Sprintf("Schedule: %s\n", html.EscapeString(schedule)))
	b.WriteString(fmt.Sprintf("Next run: %s\n", html.EscapeString(nextRun)))
	b.WriteString(fmt.Sprintf("Tickers: %s\n", html.EscapeString(strings.Join(syms, ", "))))
	return b.String()
}

// SplitMessage cuts text into chunks of at most limit bytes, preferring blank-line
// boundaries, then line boundaries. A single oversize line is hard-cut on a rune boundary.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], "\n")
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
