package report

import (
	"fmt"
	"sort"

	"github.com/arizent/composer-insights/internal/models"
)

// Categories excluded from the action-card-scoped views. Subscription
// and uncategorized rows are summarized separately.
const (
	CategorySubscription  = "Subscription"
	CategoryUncategorized = "Uncategorized"
)

// RateDash is the placeholder shown when a conversion rate cannot be
// computed because the template exposure count is zero.
const RateDash = "—"

func excludedCategory(id string) bool {
	return id == CategorySubscription || id == CategoryUncategorized
}

// ActionCardSummary is one row of the action-card selector table.
type ActionCardSummary struct {
	ID        string  `json:"actionCardId"`
	Name      string  `json:"actionCardName"`
	Exposures float64 `json:"exposures"`
}

// TermConversionRow is one accumulated (action card, template, term)
// conversion entry with its computed rate.
type TermConversionRow struct {
	ActionCardID   string  `json:"actionCardId"`
	ActionCardName string  `json:"actionCardName"`
	TemplateName   string  `json:"templateName"`
	TermID         string  `json:"termId"`
	TermName       string  `json:"termName"`
	Conversions    float64 `json:"conversions"`
	ConversionRate string  `json:"conversionRate"`
}

// AllTermConversion is one row of the cross-action audit table.
type AllTermConversion struct {
	ActionCardName string  `json:"actionCardName"`
	TermName       string  `json:"termName"`
	Conversions    float64 `json:"conversions"`
}

// TemplateExposure pairs a template name with its exposure maximum.
type TemplateExposure struct {
	TemplateName string  `json:"templateName"`
	Exposures    float64 `json:"exposures"`
}

// Grouping keys are value-equality structs, not delimiter-joined
// strings: names and ids are not escaped anywhere, so a joined key
// would silently corrupt grouping the moment a name contained the
// delimiter.

type actionTemplateKey struct {
	actionCardID string
	templateName string
}

type termAccumKey struct {
	actionCardID string
	templateName string
	termID       string
	termName     string
}

type allTermKey struct {
	actionCardName string
	termID         string
	termName       string
}

// ExposureIndex holds the per-(action card, template) exposure maxima
// for rows outside the excluded categories. Multiple rows redundantly
// report the same template's exposure count, so the per-pair reduction
// is max, never sum.
type ExposureIndex struct {
	max   map[actionTemplateKey]float64
	names map[string]string
	order []actionTemplateKey
}

// BuildExposureIndex scans rows once and records, for every action card
// outside the excluded categories, the maximum exposure value observed
// per distinct template name, plus the first-seen action-card name.
func BuildExposureIndex(rows []models.ReportRow) *ExposureIndex {
	ix := &ExposureIndex{
		max:   make(map[actionTemplateKey]float64),
		names: make(map[string]string),
	}
	for i := range rows {
		r := &rows[i]
		acID := r.ActionCardID()
		if acID == "" || excludedCategory(r.CategoryID()) {
			continue
		}
		key := actionTemplateKey{actionCardID: acID, templateName: r.TemplateName()}
		exp := float64(r.Exposures)
		prev, seen := ix.max[key]
		if !seen {
			ix.order = append(ix.order, key)
			ix.max[key] = exp
		} else if exp > prev {
			ix.max[key] = exp
		}
		if _, ok := ix.names[acID]; !ok {
			ix.names[acID] = r.ActionCardName()
		}
	}
	return ix
}

// Exposures returns the recorded maximum for an (action card, template)
// pair, or 0 when the pair was never seen outside the excluded
// categories.
func (ix *ExposureIndex) Exposures(actionCardID, templateName string) float64 {
	return ix.max[actionTemplateKey{actionCardID: actionCardID, templateName: templateName}]
}

// ActionCardName returns the first-seen name for an action card id.
func (ix *ExposureIndex) ActionCardName(actionCardID string) string {
	return ix.names[actionCardID]
}

// TemplatesFor lists the templates recorded for one action card with
// their exposure maxima, in first-seen order.
func (ix *ExposureIndex) TemplatesFor(actionCardID string) []TemplateExposure {
	var out []TemplateExposure
	for _, key := range ix.order {
		if key.actionCardID != actionCardID {
			continue
		}
		out = append(out, TemplateExposure{
			TemplateName: key.templateName,
			Exposures:    ix.max[key],
		})
	}
	return out
}

// BuildActionCardSummaries reduces the exposure index to one row per
// action card: the per-template maxima are summed into the card's total
// exposure. This is the max-then-sum reduction — a naive sum over rows
// double-counts redundant template rows, and a max across templates
// (which one historical front-end variant applied) undercounts
// multi-template cards. Result is sorted by action-card name, ties kept
// in encounter order.
func BuildActionCardSummaries(rows []models.ReportRow) []ActionCardSummary {
	ix := BuildExposureIndex(rows)
	return ix.Summaries()
}

// Summaries reduces the index by action card id, summing per-template
// maxima.
func (ix *ExposureIndex) Summaries() []ActionCardSummary {
	totals := make(map[string]*ActionCardSummary)
	var order []string
	for _, key := range ix.order {
		s, ok := totals[key.actionCardID]
		if !ok {
			s = &ActionCardSummary{
				ID:   key.actionCardID,
				Name: ix.names[key.actionCardID],
			}
			totals[key.actionCardID] = s
			order = append(order, key.actionCardID)
		}
		s.Exposures += ix.max[key]
	}

	out := make([]ActionCardSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// BuildTermConversionRows accumulates conversions per (action card,
// template, term) outside the excluded categories and computes each
// entry's conversion rate against the per-template exposure maximum.
// Zero exposures yield the dash placeholder, never NaN or infinity.
// Result is sorted by conversions descending, stable for ties.
func BuildTermConversionRows(rows []models.ReportRow) []TermConversionRow {
	ix := BuildExposureIndex(rows)

	conv := make(map[termAccumKey]float64)
	var order []termAccumKey
	for i := range rows {
		r := &rows[i]
		if excludedCategory(r.CategoryID()) {
			continue
		}
		acID := r.ActionCardID()
		termID, termName := r.TermID(), r.TermName()
		if acID == "" || (termID == "" && termName == "") {
			continue
		}
		key := termAccumKey{
			actionCardID: acID,
			templateName: r.TemplateName(),
			termID:       termID,
			termName:     termName,
		}
		if _, seen := conv[key]; !seen {
			order = append(order, key)
		}
		conv[key] += float64(r.Conversions)
	}

	out := make([]TermConversionRow, 0, len(order))
	for _, key := range order {
		exposures := ix.Exposures(key.actionCardID, key.templateName)
		out = append(out, TermConversionRow{
			ActionCardID:   key.actionCardID,
			ActionCardName: ix.ActionCardName(key.actionCardID),
			TemplateName:   key.templateName,
			TermID:         key.termID,
			TermName:       key.termName,
			Conversions:    conv[key],
			ConversionRate: FormatRate(conv[key], exposures),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Conversions > out[j].Conversions
	})
	return out
}

// BuildAllTermConversions accumulates conversions per (action card
// name, term) across every category — Subscription and Uncategorized
// rows included, this view is a cross-cutting audit table. Cards with
// an empty name fall back to their id. Sorted by action-card name
// ascending, then conversions descending within each name.
func BuildAllTermConversions(rows []models.ReportRow) []AllTermConversion {
	conv := make(map[allTermKey]float64)
	var order []allTermKey
	for i := range rows {
		r := &rows[i]
		acName := r.ActionCardName()
		if acName == "" {
			acName = r.ActionCardID()
		}
		termID, termName := r.TermID(), r.TermName()
		if acName == "" || (termID == "" && termName == "") {
			continue
		}
		key := allTermKey{actionCardName: acName, termID: termID, termName: termName}
		if _, seen := conv[key]; !seen {
			order = append(order, key)
		}
		conv[key] += float64(r.Conversions)
	}

	out := make([]AllTermConversion, 0, len(order))
	for _, key := range order {
		out = append(out, AllTermConversion{
			ActionCardName: key.actionCardName,
			TermName:       key.termName,
			Conversions:    conv[key],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActionCardName != out[j].ActionCardName {
			return out[i].ActionCardName < out[j].ActionCardName
		}
		return out[i].Conversions > out[j].Conversions
	})
	return out
}

// FormatRate renders conversions/exposures as a percentage with three
// decimals, or the dash placeholder when exposures are zero.
func FormatRate(conversions, exposures float64) string {
	if exposures <= 0 {
		return RateDash
	}
	return fmt.Sprintf("%.3f%%", conversions/exposures*100)
}
