// Package render maps ordered uniform records onto table widgets. A
// widget is replaced wholesale on every render; there is no diffing.
package render

import (
	"fmt"
	"html/template"
	"strings"
)

// Field is one named cell of a record.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered sequence of fields. All records passed to one
// table are expected to share the field set of the first record; the
// first record's order defines the column order.
type Record []Field

// Get returns the value for a field name, or "" when absent.
func (r Record) Get(name string) string {
	for _, f := range r {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Selection configures the optional leading interactive column. The
// selected set is externally owned; the renderer only reads it.
type Selection struct {
	// KeyField names the record field whose value identifies a row.
	KeyField string
	// Selected holds the currently selected row keys.
	Selected map[string]bool
}

// TableSpec describes one table render.
type TableSpec struct {
	WidgetID  string
	Records   []Record
	Selection *Selection
	// Clickable marks rows as selection targets for the front end.
	Clickable bool
}

var tableTmpl = template.Must(template.New("table").Parse(`<table id="{{.WidgetID}}">
{{- if .Empty}}
<tr><td>No data</td></tr>
{{- else}}
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr{{if .Key}} data-key="{{.Key}}"{{end}}{{if .Class}} class="{{.Class}}"{{end}}>
{{- if .HasCheckbox}}<td><input type="checkbox" data-key="{{.Key}}"{{if .Selected}} checked{{end}}></td>{{end}}
{{- range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
{{- end}}
</table>
`))

type tableData struct {
	WidgetID string
	Empty    bool
	Headers  []string
	Rows     []tableRow
}

type tableRow struct {
	Key         string
	Class       string
	Selected    bool
	HasCheckbox bool
	Cells       []string
}

// Table renders the records into a complete table element. An empty
// record sequence renders the single "No data" placeholder row.
func Table(spec TableSpec) (template.HTML, error) {
	data := tableData{WidgetID: spec.WidgetID}
	if len(spec.Records) == 0 {
		data.Empty = true
		return execute(data)
	}

	for _, f := range spec.Records[0] {
		data.Headers = append(data.Headers, f.Name)
	}
	if spec.Selection != nil {
		data.Headers = append([]string{"Select"}, data.Headers...)
	}

	for _, rec := range spec.Records {
		row := tableRow{Cells: make([]string, 0, len(rec))}
		if spec.Clickable {
			row.Class = "row-clickable"
		}
		if spec.Selection != nil {
			row.Key = rec.Get(spec.Selection.KeyField)
			row.Selected = spec.Selection.Selected[row.Key]
			row.HasCheckbox = true
		}
		for _, f := range rec {
			row.Cells = append(row.Cells, f.Value)
		}
		data.Rows = append(data.Rows, row)
	}
	return execute(data)
}

func execute(data tableData) (template.HTML, error) {
	var b strings.Builder
	if err := tableTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render table %q: %w", data.WidgetID, err)
	}
	return template.HTML(b.String()), nil
}
