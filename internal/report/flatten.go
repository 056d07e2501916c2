package report

import (
	"strconv"

	"github.com/arizent/composer-insights/internal/models"
)

// FlatRow is one report row normalized to flat dotted-path keys.
type FlatRow map[string]string

// FlatRowFields is the canonical column order for flattened rows. CSV
// export and table rendering both follow it.
var FlatRowFields = []string{
	"category.id",
	"category.vxId",
	"category.interaction",
	"source.id",
	"offer",
	"term.id",
	"term.name",
	"term.link",
	"template.id",
	"template.variantId",
	"template.name",
	"template.variantName",
	"actionCard.id",
	"actionCard.name",
	"meta.currency",
	"splitTest",
	"customName",
	"row.exposures",
	"row.conversions",
	"row.value",
	"row.currency",
	"row.changed",
	"row.isCounted",
	"row.conversionRate",
}

// FlattenRows normalizes raw report rows into flat records. Missing
// nested fields flatten to empty strings, never an error. Output order
// matches input order.
func FlattenRows(rows []models.ReportRow) []FlatRow {
	out := make([]FlatRow, 0, len(rows))
	for i := range rows {
		out = append(out, flattenRow(&rows[i]))
	}
	return out
}

func flattenRow(r *models.ReportRow) FlatRow {
	f := FlatRow{
		"category.id":        r.CategoryID(),
		"source.id":          "",
		"offer":              "",
		"term.id":            r.TermID(),
		"term.name":          r.TermName(),
		"template.name":      r.TemplateName(),
		"actionCard.id":      r.ActionCardID(),
		"actionCard.name":    r.ActionCardName(),
		"row.exposures":      formatNumber(r.Exposures),
		"row.conversions":    formatNumber(r.Conversions),
		"row.value":          r.Value.String(),
		"row.currency":       r.Currency,
		"row.changed":        strconv.FormatBool(r.Changed),
		"row.isCounted":      strconv.FormatBool(r.IsCounted),
		"row.conversionRate": r.ConversionRate.String(),
	}
	meta := r.Metadata
	if meta != nil {
		if meta.Category != nil {
			f["category.vxId"] = meta.Category.VxID
			f["category.interaction"] = meta.Category.Interaction
		}
		if meta.Source != nil {
			f["source.id"] = meta.Source.ID
		}
		f["offer"] = meta.Offer.String()
		if meta.Term != nil {
			f["term.link"] = meta.Term.Link
		}
		if meta.Template != nil {
			f["template.id"] = meta.Template.ID
			f["template.variantId"] = meta.Template.VariantID
			f["template.variantName"] = meta.Template.VariantName
		}
		f["meta.currency"] = meta.Currency
		f["splitTest"] = meta.SplitTest.String()
		f["customName"] = meta.CustomName.String()
	}
	// Guarantee every canonical field is present, absent ones as "".
	for _, k := range FlatRowFields {
		if _, ok := f[k]; !ok {
			f[k] = ""
		}
	}
	return f
}

// formatNumber renders a count without a trailing decimal part when the
// value is integral.
func formatNumber(n models.Number) string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}
