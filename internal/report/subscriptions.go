package report

import (
	"sort"
	"strings"

	"github.com/arizent/composer-insights/internal/models"
)

// SubscriptionSummary aggregates subscription activity for a single
// selected action card.
type SubscriptionSummary struct {
	Count   int64                       `json:"count"`
	Revenue float64                     `json:"revenue"`
	Terms   []SubscriptionTermBreakdown `json:"terms"`
}

// SubscriptionTermBreakdown is one product-level term entry.
type SubscriptionTermBreakdown struct {
	TermName    string  `json:"termName"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// SummarizeSubscriptions totals subscription conversions and revenue
// for the selected action card. Only rows in the Subscription or
// Uncategorized categories count. The per-term breakdown additionally
// requires a non-empty term id that does not start with '#' — those are
// synthetic internal terms, not products — and drops terms whose summed
// conversions are zero. Revenue parsing is fail-soft: a malformed value
// contributes 0.
func SummarizeSubscriptions(rows []models.ReportRow, actionCardID string) SubscriptionSummary {
	summary := SubscriptionSummary{}

	type termAgg struct {
		conversions int64
		revenue     float64
	}
	terms := make(map[string]*termAgg)
	var order []string

	for i := range rows {
		r := &rows[i]
		if !excludedCategory(r.CategoryID()) || r.ActionCardID() != actionCardID {
			continue
		}
		summary.Count += r.Conversions.Int()
		summary.Revenue += r.Value.Float()

		termID := r.TermID()
		if termID == "" || strings.HasPrefix(termID, "#") {
			continue
		}
		name := r.TermName()
		agg, ok := terms[name]
		if !ok {
			agg = &termAgg{}
			terms[name] = agg
			order = append(order, name)
		}
		agg.conversions += r.Conversions.Int()
		agg.revenue += r.Value.Float()
	}

	for _, name := range order {
		agg := terms[name]
		if agg.conversions == 0 {
			continue
		}
		summary.Terms = append(summary.Terms, SubscriptionTermBreakdown{
			TermName:    name,
			Conversions: agg.conversions,
			Revenue:     agg.revenue,
		})
	}
	sort.SliceStable(summary.Terms, func(i, j int) bool {
		return summary.Terms[i].Conversions > summary.Terms[j].Conversions
	})
	return summary
}
