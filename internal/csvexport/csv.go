// Package csvexport builds the downloadable CSV bundle from a fetched
// conversion report. All files are built in memory; the bundle is a
// filename → CSV text mapping.
package csvexport

import (
	"encoding/csv"
	"sort"
	"strconv"
	"strings"

	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/report"
)

var periodNames = []string{"days", "weeks", "months", "quarters", "years"}

// BuildAll returns the full bundle: summary totals, per-source and
// per-category totals, per-period totals for every cadence, the
// flattened rows file, and the action-card files.
func BuildAll(data *models.ReportData) map[string]string {
	out := map[string]string{
		"summary_totals.csv":     summaryTotalsCSV(data),
		"totals_by_source.csv":   keyedTotalsCSV("source", totalsBySource(data)),
		"totals_by_category.csv": keyedTotalsCSV("category", totalsByCategory(data)),
		"rows.csv":               rowsCSV(data.Rows),
	}
	for _, period := range periodNames {
		var rows []models.PeriodRow
		if data.TotalsByPeriods != nil {
			rows = data.TotalsByPeriods.ByCadence(period)
		}
		out["totals_by_periods_"+period+".csv"] = periodCSV(rows)
	}
	for name, text := range BuildActionCards(data) {
		out[name] = text
	}
	return out
}

// BuildActionCards returns the two action-card files:
//
//   - action_cards.csv keeps the historical export shape — one row per
//     action card with the maximum exposure value seen on any of its
//     rows. This is deliberately not the selector's max-then-sum total;
//     the file mirrors what downstream consumers of the export already
//     parse.
//   - action_card_terms.csv aggregates conversions per (action card,
//     term) pair.
func BuildActionCards(data *models.ReportData) map[string]string {
	type acInfo struct {
		id        string
		name      string
		exposures float64
	}
	type acTermKey struct {
		actionCardID string
		termID       string
		termName     string
	}

	cards := make(map[string]*acInfo)
	termConv := make(map[acTermKey]float64)

	for i := range data.Rows {
		r := &data.Rows[i]
		acID := r.ActionCardID()
		if acID == "" {
			continue
		}
		info, ok := cards[acID]
		if !ok {
			cards[acID] = &acInfo{id: acID, name: r.ActionCardName(), exposures: float64(r.Exposures)}
		} else if float64(r.Exposures) > info.exposures {
			info.exposures = float64(r.Exposures)
		}

		termID, termName := r.TermID(), r.TermName()
		if termID == "" && termName == "" {
			continue
		}
		termConv[acTermKey{actionCardID: acID, termID: termID, termName: termName}] += float64(r.Conversions)
	}

	cardRows := make([]*acInfo, 0, len(cards))
	for _, info := range cards {
		cardRows = append(cardRows, info)
	}
	sort.Slice(cardRows, func(i, j int) bool {
		if cardRows[i].name != cardRows[j].name {
			return cardRows[i].name < cardRows[j].name
		}
		return cardRows[i].id < cardRows[j].id
	})
	cardRecords := make([][]string, 0, len(cardRows))
	for _, info := range cardRows {
		cardRecords = append(cardRecords, []string{info.id, info.name, formatNumber(info.exposures)})
	}

	termKeys := make([]acTermKey, 0, len(termConv))
	for key := range termConv {
		termKeys = append(termKeys, key)
	}
	sort.Slice(termKeys, func(i, j int) bool {
		if termKeys[i].actionCardID != termKeys[j].actionCardID {
			return termKeys[i].actionCardID < termKeys[j].actionCardID
		}
		return termKeys[i].termName < termKeys[j].termName
	})
	termRecords := make([][]string, 0, len(termKeys))
	for _, key := range termKeys {
		name := ""
		if info, ok := cards[key.actionCardID]; ok {
			name = info.name
		}
		termRecords = append(termRecords, []string{
			key.actionCardID, name, key.termID, key.termName, formatNumber(termConv[key]),
		})
	}

	return map[string]string{
		"action_cards.csv":      writeCSV([]string{"actionCard.id", "actionCard.name", "row.exposures"}, cardRecords),
		"action_card_terms.csv": writeCSV([]string{"actionCard.id", "actionCard.name", "term.id", "term.name", "row.conversions"}, termRecords),
	}
}

func summaryTotalsCSV(data *models.ReportData) string {
	var totalExp, totalConv models.Number
	if data.Totals != nil {
		totalExp = data.Totals.Exposures
		totalConv = data.Totals.Conversions
	}
	return writeCSV(
		[]string{"conversions", "exposures", "totals_conversions", "totals_exposures"},
		[][]string{{
			formatNumber(float64(data.Conversions)),
			formatNumber(float64(data.Exposures)),
			formatNumber(float64(totalConv)),
			formatNumber(float64(totalExp)),
		}},
	)
}

func totalsBySource(data *models.ReportData) map[string]models.Number {
	if data.Totals == nil {
		return nil
	}
	return data.Totals.TotalsBySource
}

func totalsByCategory(data *models.ReportData) map[string]models.Number {
	if data.Totals == nil {
		return nil
	}
	return data.Totals.TotalsByCategory
}

func keyedTotalsCSV(keyHeader string, totals map[string]models.Number) string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([][]string, 0, len(keys))
	for _, k := range keys {
		records = append(records, []string{k, formatNumber(float64(totals[k]))})
	}
	return writeCSV([]string{keyHeader, "conversions"}, records)
}

func periodCSV(rows []models.PeriodRow) string {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Date,
			formatNumber(float64(r.Exposures)),
			formatNumber(float64(r.Conversions)),
			r.ConversionRate.String(),
		})
	}
	return writeCSV([]string{"date", "exposures", "conversions", "conversionRate"}, records)
}

func rowsCSV(rows []models.ReportRow) string {
	flat := report.FlattenRows(rows)
	records := make([][]string, 0, len(flat))
	for _, f := range flat {
		rec := make([]string, 0, len(report.FlatRowFields))
		for _, field := range report.FlatRowFields {
			rec = append(rec, f[field])
		}
		records = append(records, rec)
	}
	return writeCSV(report.FlatRowFields, records)
}

func writeCSV(header []string, records [][]string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(header)
	_ = w.WriteAll(records)
	w.Flush()
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
