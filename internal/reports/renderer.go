package reports

import (
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tempora-hq/tempora/internal/shared"
)

// frenchMonths maps time.Month to the month names used in the PDF heading.
var frenchMonths = [...]string{
	time.January:   "janvier",
	time.February:  "février",
	time.March:     "mars",
	time.April:     "avril",
	time.May:       "mai",
	time.June:      "juin",
	time.July:      "juillet",
	time.August:    "août",
	time.September: "septembre",
	time.October:   "octobre",
	time.November:  "novembre",
	time.December:  "décembre",
}

// MonthTitle renders a month in the report's locale, e.g. "février 2025".
func MonthTitle(m shared.Month) string {
	return frenchMonths[m.Month] + " " + message.NewPrinter(language.French).Sprintf("%d", m.Year)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 2.5cm; color: #1a1a1a; }
  h1 { font-size: 20px; margin-bottom: 0; }
  h2 { font-size: 14px; margin: 18px 0 6px; }
  .meta { color: #5a5a5a; font-size: 12px; margin-bottom: 18px; }
  table { width: 100%; border-collapse: collapse; font-size: 12px; }
  th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
  th.num, td.num { text-align: right; }
  .total { font-weight: bold; margin-top: 18px; font-size: 13px; }
</style>
</head>
<body>
<h1>Rapport mensuel</h1>
<p class="meta">{{.Username}} / {{.MonthTitle}} / {{.EntryCount}} saisie(s)</p>
{{range .Projects}}
<h2>{{.ProjectName}}</h2>
<table>
  <tr><th>Date</th><th class="num">Jours</th><th>Description</th></tr>
  {{range .Entries}}
  <tr><td>{{.Date}}</td><td class="num">{{printf "%.2f" .Days}}</td><td>{{.Description}}</td></tr>
  {{end}}
  <tr><td>Sous-total</td><td class="num">{{printf "%.2f" .TotalDays}}</td><td></td></tr>
</table>
{{end}}
<p class="total">Total du mois : {{printf "%.2f" .TotalDays}} jour(s)</p>
</body>
</html>`))

type reportPage struct {
	Username   string
	MonthTitle string
	Aggregate
}

// RenderHTML produces the report document handed to the PDF converter.
func RenderHTML(username string, month shared.Month, agg Aggregate) (string, error) {
	var b strings.Builder
	err := reportTemplate.Execute(&b, reportPage{
		Username:   username,
		MonthTitle: MonthTitle(month),
		Aggregate:  agg,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
