package render

import (
	"bytes"
	"html/template"
)

// Section is one titled block of the dashboard page.
type Section struct {
	Title string
	Body  template.HTML
}

// PageData is everything the dashboard page template needs.
type PageData struct {
	Title    string
	Subtitle string
	Sections []Section
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem; color: #1a1a2e; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; margin-top: 2rem; }
table { border-collapse: collapse; margin-top: 0.5rem; }
th, td { border: 1px solid #d0d0e0; padding: 0.3rem 0.6rem; text-align: left; font-size: 0.85rem; }
th { background: #f0f0f8; }
.row-clickable { cursor: pointer; }
.row-clickable:hover { background: #f5f5ff; }
.subtitle { color: #666; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Subtitle}}<p class="subtitle">{{.Subtitle}}</p>{{end}}
{{range .Sections}}<h2>{{.Title}}</h2>
{{.Body}}
{{end}}</body>
</html>
`))

// Page renders the full dashboard page.
func Page(data PageData) (template.HTML, error) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
