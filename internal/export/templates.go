package export

import (
	"bytes"
	"fmt"
	"html/template"
)

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Georgia, serif; color: #1a1a1a; margin: 0; }
  h1 { font-size: 22px; margin-bottom: 2px; }
  .meta { color: #666; font-size: 12px; margin-bottom: 18px; }
  table { width: 100%; border-collapse: collapse; font-size: 12px; }
  th { text-align: left; border-bottom: 2px solid #333; padding: 5px 8px; }
  td { border-bottom: 1px solid #ddd; padding: 5px 8px; }
  td.num, th.num { text-align: right; }
  tr:nth-child(even) td { background: #f7f7f5; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">
  {{.FromDate}} to {{.ToDate}} · generated {{formatDate .GeneratedAt "2 Jan 2006 15:04"}}
</div>
<table>
  <tr>
    <th>Song</th>
    {{range .Activities}}<th class="num">{{.}}</th>{{end}}
    <th class="num">Total</th>
    <th>First used</th>
    <th>Last used</th>
  </tr>
  {{range .Rows}}
  <tr>
    <td>{{.FirstLine}}</td>
    {{range .PerColumn}}<td class="num">{{.}}</td>{{end}}
    <td class="num">{{.Total}}</td>
    <td>{{.FirstUsed}}</td>
    <td>{{.LastUsed}}</td>
  </tr>
  {{end}}
</table>
</body>
</html>`

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": formatDate,
}).Parse(reportTemplate))

func formatDate(t interface{ Format(string) string }, layout string) string {
	return t.Format(layout)
}

func renderReport(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
