package alerts

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/sourcewatch/sourcewatch/internal/store"
)

const digestHTML = `<html>
<body style="font-family: sans-serif">
<h2>Source health digest</h2>
<p>{{.Date}} &mdash; {{.Total}} new alert{{if ne .Total 1}}s{{end}}
({{len .Critical}} critical, {{len .Warning}} warning)</p>
{{if .Critical}}
<h3 style="color: #c0392b">Critical</h3>
<ul>
{{range .Critical}}<li><strong>{{.SourceKey}}</strong> [{{.Kind}}] {{.Message}}<br>
<a href="{{.URL}}">{{.URL}}</a></li>
{{end}}</ul>
{{end}}
{{if .Warning}}
<h3 style="color: #e67e22">Warnings</h3>
<ul>
{{range .Warning}}<li><strong>{{.SourceKey}}</strong> [{{.Kind}}] {{.Message}}<br>
<a href="{{.URL}}">{{.URL}}</a></li>
{{end}}</ul>
{{end}}
</body>
</html>
`

const alertHTML = `<html>
<body style="font-family: sans-serif">
<h2>{{.Severity}} alert: {{.SourceKey}}</h2>
<p><strong>{{.Kind}}</strong> &mdash; {{.Message}}</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
</body>
</html>
`

var (
	digestTmpl = template.Must(template.New("digest").Parse(digestHTML))
	alertTmpl  = template.Must(template.New("alert").Parse(alertHTML))
)

type digestData struct {
	Date     string
	Total    int
	Critical []store.Alert
	Warning  []store.Alert
}

// renderDigest splits alerts by severity and renders the digest email.
func renderDigest(alerts []store.Alert, now time.Time) (subject, body string, err error) {
	data := digestData{
		Date:  now.Format("2006-01-02 15:04 MST"),
		Total: len(alerts),
	}
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			data.Critical = append(data.Critical, a)
		} else {
			data.Warning = append(data.Warning, a)
		}
	}

	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, data); err != nil {
		return "", "", err
	}
	plural := "s"
	if len(alerts) == 1 {
		plural = ""
	}
	subject = fmt.Sprintf("[sourcewatch] %d new alert%s", len(alerts), plural)
	return subject, sb.String(), nil
}

// renderAlert renders a single-alert email.
func renderAlert(a store.Alert) (subject, body string, err error) {
	var sb strings.Builder
	if err := alertTmpl.Execute(&sb, a); err != nil {
		return "", "", err
	}
	subject = fmt.Sprintf("[sourcewatch] %s: %s %s", a.Severity, a.SourceKey, a.Kind)
	return subject, sb.String(), nil
}
