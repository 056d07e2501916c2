package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arizent/composer-insights/internal/models"
)

func subRow(cat, acID, termID, termName string, conversions float64, value string) models.ReportRow {
	r := row(cat, acID, "Card", "T1", termID, termName, 0, conversions)
	r.Value = models.Text(value)
	return r
}

func TestSummarizeSubscriptionsTotals(t *testing.T) {
	rows := []models.ReportRow{
		subRow(CategorySubscription, "AC1", "TM1", "Monthly", 3, "29.97"),
		subRow(CategoryUncategorized, "AC1", "TM2", "Annual", 2, "199.98"),
		// Different card, must not count.
		subRow(CategorySubscription, "AC2", "TM1", "Monthly", 10, "99.90"),
		// Non-subscription category, must not count.
		subRow("Purchase", "AC1", "TM1", "Monthly", 7, "69.93"),
	}

	summary := SummarizeSubscriptions(rows, "AC1")
	assert.Equal(t, int64(5), summary.Count)
	assert.InDelta(t, 229.95, summary.Revenue, 1e-9)
}

func TestSummarizeSubscriptionsFailSoftRevenue(t *testing.T) {
	rows := []models.ReportRow{
		subRow(CategorySubscription, "AC1", "TM1", "Monthly", 1, "N/A"),
		subRow(CategorySubscription, "AC1", "TM1", "Monthly", 1, "9.99"),
		subRow(CategorySubscription, "AC1", "TM1", "Monthly", 1, ""),
	}

	summary := SummarizeSubscriptions(rows, "AC1")
	assert.Equal(t, int64(3), summary.Count)
	assert.InDelta(t, 9.99, summary.Revenue, 1e-9)
}

func TestSummarizeSubscriptionsTermBreakdown(t *testing.T) {
	rows := []models.ReportRow{
		subRow(CategorySubscription, "AC1", "TM1", "Monthly", 2, "19.98"),
		subRow(CategorySubscription, "AC1", "TM2", "Annual", 5, "499.95"),
		// Synthetic internal term, excluded from the breakdown but
		// still counted in the totals.
		subRow(CategorySubscription, "AC1", "#internal", "Internal", 4, "0"),
		// Missing term id, totals only.
		subRow(CategorySubscription, "AC1", "", "Orphan", 1, "5.00"),
		// Zero conversions, dropped from the breakdown.
		subRow(CategorySubscription, "AC1", "TM3", "Trial", 0, "0"),
	}

	summary := SummarizeSubscriptions(rows, "AC1")
	assert.Equal(t, int64(12), summary.Count)

	require.Len(t, summary.Terms, 2)
	assert.Equal(t, "Annual", summary.Terms[0].TermName)
	assert.Equal(t, int64(5), summary.Terms[0].Conversions)
	assert.Equal(t, "Monthly", summary.Terms[1].TermName)
	assert.Equal(t, int64(2), summary.Terms[1].Conversions)
}

func TestSummarizeSubscriptionsEmpty(t *testing.T) {
	summary := SummarizeSubscriptions(nil, "AC1")
	assert.Equal(t, int64(0), summary.Count)
	assert.Equal(t, 0.0, summary.Revenue)
	assert.Empty(t, summary.Terms)
}
