package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arizent/composer-insights/internal/models"
)

func row(cat, acID, acName, tmpl, termID, termName string, exposures, conversions float64) models.ReportRow {
	return models.ReportRow{
		Exposures:   models.Number(exposures),
		Conversions: models.Number(conversions),
		Metadata: &models.ConversionSetMetadata{
			Category:   &models.CategoryMeta{ID: cat},
			ActionCard: &models.ActionCardMeta{ID: acID, Name: acName},
			Template:   &models.TemplateMeta{Name: tmpl},
			Term:       &models.TermMeta{ID: termID, Name: termName},
		},
	}
}

func TestBuildActionCardSummariesMaxThenSum(t *testing.T) {
	// Template T1 reports its exposure count redundantly on two rows;
	// template T2 adds its own. The card total must be max(60,50)+40,
	// not the naive row sum of 150.
	rows := []models.ReportRow{
		row("Purchase", "AC1", "Offer card", "T1", "TM1", "Monthly", 60, 10),
		row("Purchase", "AC1", "Offer card", "T1", "TM2", "Annual", 50, 20),
		row("Purchase", "AC1", "Offer card", "T2", "TM1", "Monthly", 40, 10),
	}

	summaries := BuildActionCardSummaries(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, "AC1", summaries[0].ID)
	assert.Equal(t, "Offer card", summaries[0].Name)
	assert.Equal(t, 100.0, summaries[0].Exposures)
}

func TestBuildActionCardSummariesSortedByName(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC2", "Zeta", "T1", "", "x", 5, 1),
		row("Purchase", "AC1", "Alpha", "T1", "", "x", 5, 1),
	}

	summaries := BuildActionCardSummaries(rows)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Alpha", summaries[0].Name)
	assert.Equal(t, "Zeta", summaries[1].Name)
}

func TestBuildActionCardSummariesSkipsExcludedCategories(t *testing.T) {
	rows := []models.ReportRow{
		row(CategorySubscription, "AC1", "Card", "T1", "TM1", "Monthly", 100, 5),
		row(CategoryUncategorized, "AC1", "Card", "T1", "TM1", "Monthly", 100, 5),
		row("Purchase", "AC1", "Card", "T1", "TM1", "Monthly", 30, 5),
	}

	summaries := BuildActionCardSummaries(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, 30.0, summaries[0].Exposures)
}

func TestBuildActionCardSummariesSkipsRowsWithoutActionCard(t *testing.T) {
	rows := []models.ReportRow{
		{Exposures: 50, Conversions: 5},
		row("Purchase", "", "", "T1", "TM1", "Monthly", 50, 5),
	}
	assert.Empty(t, BuildActionCardSummaries(rows))
}

func TestTemplatesForFirstSeenOrder(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC1", "Card", "Banner", "TM1", "Monthly", 10, 1),
		row("Purchase", "AC1", "Card", "Modal", "TM1", "Monthly", 20, 1),
		row("Purchase", "AC1", "Card", "Banner", "TM2", "Annual", 15, 1),
		row("Purchase", "AC2", "Other", "Inline", "TM1", "Monthly", 5, 1),
	}

	ix := BuildExposureIndex(rows)
	templates := ix.TemplatesFor("AC1")
	require.Len(t, templates, 2)
	assert.Equal(t, "Banner", templates[0].TemplateName)
	assert.Equal(t, 15.0, templates[0].Exposures)
	assert.Equal(t, "Modal", templates[1].TemplateName)
	assert.Equal(t, 20.0, templates[1].Exposures)
}

func TestBuildTermConversionRowsWorkedExample(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC1", "Offer card", "T1", "TM1", "Monthly", 60, 25),
		row("Purchase", "AC1", "Offer card", "T1", "TM1", "Monthly", 50, 15),
		row("Purchase", "AC1", "Offer card", "T1", "TM2", "Annual", 60, 3),
	}

	terms := BuildTermConversionRows(rows)
	require.Len(t, terms, 2)

	// Sorted by conversions descending.
	assert.Equal(t, "Monthly", terms[0].TermName)
	assert.Equal(t, 40.0, terms[0].Conversions)
	// Rate uses the per-template exposure maximum: 40/max(60,50).
	assert.Equal(t, "66.667%", terms[0].ConversionRate)

	assert.Equal(t, "Annual", terms[1].TermName)
	assert.Equal(t, 3.0, terms[1].Conversions)
	assert.Equal(t, "5.000%", terms[1].ConversionRate)
}

func TestBuildTermConversionRowsDashOnZeroExposures(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC1", "Card", "T1", "TM1", "Monthly", 0, 7),
	}

	terms := BuildTermConversionRows(rows)
	require.Len(t, terms, 1)
	assert.Equal(t, RateDash, terms[0].ConversionRate)
}

func TestBuildTermConversionRowsRequiresTermIdentity(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC1", "Card", "T1", "", "", 50, 5),
		row("Purchase", "AC1", "Card", "T1", "TM1", "", 50, 5),
		row("Purchase", "AC1", "Card", "T1", "", "Monthly", 50, 5),
	}

	terms := BuildTermConversionRows(rows)
	// Only rows with a term id or name survive, grouped separately.
	require.Len(t, terms, 2)
}

func TestBuildTermConversionRowsExcludesSubscriptionCategory(t *testing.T) {
	rows := []models.ReportRow{
		row(CategorySubscription, "AC1", "Card", "T1", "TM1", "Monthly", 50, 5),
		row("Purchase", "AC1", "Card", "T1", "TM2", "Annual", 50, 2),
	}

	terms := BuildTermConversionRows(rows)
	require.Len(t, terms, 1)
	assert.Equal(t, "Annual", terms[0].TermName)
}

func TestBuildAllTermConversionsIncludesEveryCategory(t *testing.T) {
	rows := []models.ReportRow{
		row(CategorySubscription, "AC1", "Card", "T1", "TM1", "Monthly", 50, 5),
		row("Purchase", "AC1", "Card", "T1", "TM1", "Monthly", 50, 3),
	}

	all := BuildAllTermConversions(rows)
	require.Len(t, all, 1)
	assert.Equal(t, 8.0, all[0].Conversions)
}

func TestBuildAllTermConversionsNameFallbackAndSort(t *testing.T) {
	rows := []models.ReportRow{
		row("Purchase", "AC9", "", "T1", "TM1", "Monthly", 10, 1),
		row("Purchase", "AC1", "Alpha", "T1", "TM2", "Annual", 10, 2),
		row("Purchase", "AC1", "Alpha", "T1", "TM1", "Monthly", 10, 9),
	}

	all := BuildAllTermConversions(rows)
	require.Len(t, all, 3)
	// Name ascending, conversions descending within a name. The
	// nameless card sorts under its id, and "AC9" orders before "Alpha"
	// ('C' < 'l').
	assert.Equal(t, "AC9", all[0].ActionCardName)
	assert.Equal(t, 1.0, all[0].Conversions)
	assert.Equal(t, "Alpha", all[1].ActionCardName)
	assert.Equal(t, 9.0, all[1].Conversions)
	assert.Equal(t, "Alpha", all[2].ActionCardName)
	assert.Equal(t, 2.0, all[2].Conversions)
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name        string
		conversions float64
		exposures   float64
		want        string
	}{
		{"zero exposures", 5, 0, RateDash},
		{"negative exposures", 5, -1, RateDash},
		{"forty percent", 40, 100, "40.000%"},
		{"rounding", 1, 3, "33.333%"},
		{"over one hundred", 12, 10, "120.000%"},
		{"zero conversions", 0, 10, "0.000%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRate(tt.conversions, tt.exposures))
		})
	}
}
