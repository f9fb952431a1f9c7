package notifier

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"ForecastMailer/internal/model"
)

const Disclaimer = "This forecast is for informational purposes only and should not be considered financial advice. " +
	"Always do your own research and consult with a financial advisor before making investment decisions."

var funcs = map[string]any{
	"disclaimer": func() string { return Disclaimer },
	"signed": func(q model.QuoteSnapshot) string {
		if q.PercentChange.IsPositive() {
			return "+" + q.ChangeText()
		}
		return q.ChangeText()
	},
	"changeColor": func(q model.QuoteSnapshot) string {
		switch {
		case q.PercentChange.IsPositive():
			return "#10b981"
		case q.PercentChange.IsNegative():
			return "#ef4444"
		default:
			return "#6b7280"
		}
	},
	"recColor": func(r model.Recommendation) string {
		switch r {
		case model.Buy:
			return "#10b981"
		case model.Sell:
			return "#ef4444"
		default:
			return "#f59e0b"
		}
	},
}

var htmlTmpl = htmltemplate.Must(htmltemplate.New("digest").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 640px; margin: 0 auto; padding: 20px; }
    .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 10px 10px 0 0; }
    .header h1 { margin: 0; font-size: 26px; }
    .content { background: #f9fafb; padding: 30px; border-radius: 0 0 10px 10px; }
    .ticker { background: white; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #667eea; }
    .ticker.degraded { border-left-color: #f59e0b; }
    .info-box { background: #e0e7ff; padding: 15px; border-radius: 8px; margin: 15px 0; }
    .market-time { background: #10b981; color: white; padding: 6px 14px; border-radius: 8px; font-weight: bold; }
    .rec { color: white; padding: 4px 12px; border-radius: 6px; font-weight: bold; }
    .footer { text-align: center; margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; color: #666; font-size: 12px; }
    td { padding: 2px 12px 2px 0; }
  </style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Market Forecast Digest</h1>
    <p>{{.RunDate}}</p>
  </div>
  <div class="content">
    {{if .MarketOpenTime}}<div class="info-box"><strong>Market Opens:</strong> <span class="market-time">{{.MarketOpenTime}}</span></div>{{end}}
    {{range .Results}}
    <div class="ticker{{if .Degraded}} degraded{{end}}">
      <h2 style="margin-top: 0;">{{.Ticker.DisplayName}} ({{.Ticker.Symbol}})</h2>
      <table>
        <tr><td>Price</td><td><strong>${{.Quote.PriceText}}</strong></td></tr>
        <tr><td>Previous close</td><td>${{.Quote.PreviousCloseText}}</td></tr>
        <tr><td>Change</td><td style="color: {{changeColor .Quote}};">{{signed .Quote}}%</td></tr>
        <tr><td>52-week range</td><td>{{.Quote.Low52wText}} - {{.Quote.High52wText}}</td></tr>
        <tr><td>Recommendation</td><td><span class="rec" style="background: {{recColor .Assessment.Recommendation}};">{{.Assessment.Recommendation}}</span></td></tr>
        <tr><td>Price target</td><td>${{.Assessment.PriceTarget}}</td></tr>
      </table>
      <p>{{.Assessment.KeyInsight}}</p>
      {{if .Degraded}}<p><em>AI forecast unavailable; neutral placeholder shown.</em></p>{{end}}
    </div>
    {{else}}
    <div class="ticker"><p>No market data could be retrieved for this run.</p></div>
    {{end}}
    <div class="info-box"><strong>Disclaimer:</strong> {{disclaimer}}</div>
    <div class="footer">
      <p>Generated automatically at {{.RunTime}}</p>
      <p>Run {{.RunID}}</p>
    </div>
  </div>
</div>
</body>
</html>
`))

var textTmpl = texttemplate.Must(texttemplate.New("digest").Funcs(funcs).Parse(`Market Forecast Digest - {{.RunDate}}
{{if .MarketOpenTime}}Market Opens: {{.MarketOpenTime}}
{{end}}{{range .Results}}
{{.Ticker.DisplayName}} ({{.Ticker.Symbol}})
  Price: ${{.Quote.PriceText}} ({{signed .Quote}}%)
  Previous close: ${{.Quote.PreviousCloseText}}
  52-week range: {{.Quote.Low52wText}} - {{.Quote.High52wText}}
  Recommendation: {{.Assessment.Recommendation}}
  Price target: ${{.Assessment.PriceTarget}}
  {{.Assessment.KeyInsight}}{{if .Degraded}} [degraded]{{end}}
{{else}}
No market data could be retrieved for this run.
{{end}}
Disclaimer: {{disclaimer}}

Generated at {{.RunTime}}
`))

// RenderHTML renders the HTML email body.
func RenderHTML(d *model.Digest) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders the plain-text email body.
func RenderText(d *model.Digest) (string, error) {
	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render text: %w", err)
	}
	return buf.String(), nil
}
