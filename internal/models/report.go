package models

import (
	"bytes"
	"strconv"
	"strings"
)

// ===========================================
// CONVERSION REPORT PAYLOAD
// ===========================================

// ReportData is the payload returned by the Piano composer conversion
// endpoint. Upstream data is not guaranteed well-typed: numeric fields
// arrive as numbers or strings, and any nested metadata object may be
// absent. Decoding is therefore fail-soft throughout — malformed values
// become zero/empty, never an error.
type ReportData struct {
	Exposures       Number        `json:"exposures"`
	Conversions     Number        `json:"conversions"`
	Totals          *Totals       `json:"totals,omitempty"`
	TotalsByPeriods *PeriodTotals `json:"totalsByPeriods,omitempty"`
	Rows            []ReportRow   `json:"rows"`
}

// Totals holds the report-level totals block.
type Totals struct {
	Exposures        Number            `json:"exposures"`
	Conversions      Number            `json:"conversions"`
	TotalsBySource   map[string]Number `json:"totalsBySource,omitempty"`
	TotalsByCategory map[string]Number `json:"totalsByCategory,omitempty"`
}

// PeriodTotals groups per-period totals by cadence.
type PeriodTotals struct {
	Days     []PeriodRow `json:"days,omitempty"`
	Weeks    []PeriodRow `json:"weeks,omitempty"`
	Months   []PeriodRow `json:"months,omitempty"`
	Quarters []PeriodRow `json:"quarters,omitempty"`
	Years    []PeriodRow `json:"years,omitempty"`
}

// ByCadence returns the period rows for the given cadence name.
func (p *PeriodTotals) ByCadence(cadence string) []PeriodRow {
	if p == nil {
		return nil
	}
	switch cadence {
	case "days":
		return p.Days
	case "weeks":
		return p.Weeks
	case "months":
		return p.Months
	case "quarters":
		return p.Quarters
	case "years":
		return p.Years
	}
	return nil
}

// PeriodRow is one dated entry in a per-period totals table.
type PeriodRow struct {
	Date           string `json:"date"`
	Exposures      Number `json:"exposures"`
	Conversions    Number `json:"conversions"`
	ConversionRate Text   `json:"conversionRate"`
}

// ReportRow is a single observation: one conversion set's metrics plus
// its nested metadata.
type ReportRow struct {
	Exposures      Number                 `json:"exposures"`
	Conversions    Number                 `json:"conversions"`
	Value          Text                   `json:"value"`
	Currency       string                 `json:"currency,omitempty"`
	Changed        bool                   `json:"changed,omitempty"`
	IsCounted      bool                   `json:"isCounted,omitempty"`
	ConversionRate Text                   `json:"conversionRate,omitempty"`
	Metadata       *ConversionSetMetadata `json:"conversionSetMetadata,omitempty"`
}

// ConversionSetMetadata carries the nested descriptive fields of a row.
// Every field is optional.
type ConversionSetMetadata struct {
	Category   *CategoryMeta   `json:"category,omitempty"`
	Source     *SourceMeta     `json:"source,omitempty"`
	Offer      Text            `json:"offer,omitempty"`
	Term       *TermMeta       `json:"term,omitempty"`
	Template   *TemplateMeta   `json:"template,omitempty"`
	ActionCard *ActionCardMeta `json:"actionCard,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	SplitTest  Text            `json:"splitTest,omitempty"`
	CustomName Text            `json:"customName,omitempty"`
}

type CategoryMeta struct {
	ID          string `json:"id,omitempty"`
	VxID        string `json:"vxId,omitempty"`
	Interaction string `json:"interaction,omitempty"`
}

type SourceMeta struct {
	ID string `json:"id,omitempty"`
}

type TermMeta struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Link string `json:"link,omitempty"`
}

type TemplateMeta struct {
	ID          string `json:"id,omitempty"`
	VariantID   string `json:"variantId,omitempty"`
	Name        string `json:"name,omitempty"`
	VariantName string `json:"variantName,omitempty"`
}

type ActionCardMeta struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Nil-safe accessors. Aggregation walks these constantly; guarding the
// optional nesting once here keeps the callers flat.

func (r *ReportRow) CategoryID() string {
	if r.Metadata == nil || r.Metadata.Category == nil {
		return ""
	}
	return r.Metadata.Category.ID
}

func (r *ReportRow) ActionCardID() string {
	if r.Metadata == nil || r.Metadata.ActionCard == nil {
		return ""
	}
	return r.Metadata.ActionCard.ID
}

func (r *ReportRow) ActionCardName() string {
	if r.Metadata == nil || r.Metadata.ActionCard == nil {
		return ""
	}
	return r.Metadata.ActionCard.Name
}

func (r *ReportRow) TemplateName() string {
	if r.Metadata == nil || r.Metadata.Template == nil {
		return ""
	}
	return r.Metadata.Template.Name
}

func (r *ReportRow) TermID() string {
	if r.Metadata == nil || r.Metadata.Term == nil {
		return ""
	}
	return r.Metadata.Term.ID
}

func (r *ReportRow) TermName() string {
	if r.Metadata == nil || r.Metadata.Term == nil {
		return ""
	}
	return r.Metadata.Term.Name
}

// ===========================================
// FAIL-SOFT SCALARS
// ===========================================

// Number decodes JSON numbers, numeric strings, nulls and anything else
// without error; non-numeric input becomes 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// Int truncates to an integer count.
func (n Number) Int() int64 { return int64(n) }

// Text decodes any JSON scalar into its textual form; null becomes the
// empty string. Objects and arrays also decode (to their raw JSON) so a
// surprising upstream shape can never fail the whole report.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*t = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := unmarshalString(b, &unquoted); err == nil {
			*t = Text(unquoted)
			return nil
		}
		*t = Text(s[1 : len(s)-1])
		return nil
	}
	*t = Text(s)
	return nil
}

func (t Text) String() string { return string(t) }

// Float parses the text as a float, returning 0 on failure. This is the
// fail-soft coercion used for revenue values like "N/A".
func (t Text) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		return 0
	}
	return f
}

func unmarshalString(b []byte, out *string) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return err
	}
	*out = s
	return nil
}
