// Package session owns the dashboard's mutable state: the last fetched
// report and the two selection cursors. Everything a reader sees is a
// pure projection of that state, recomputed wholesale on every change.
package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoActionCardSelected is returned for template clicks while no
// action card is selected.
var ErrNoActionCardSelected = errors.New("no action card selected")

// View is an atomic snapshot of every projection for the current state.
// All fields reflect the same post-transition state; readers never see
// a cursor change without the matching projections.
type View struct {
	Loaded  bool   `json:"loaded"`
	FetchID string `json:"fetchId,omitempty"`

	SelectedActionCardID string `json:"selectedActionCardId,omitempty"`
	SelectedTemplateName string `json:"selectedTemplateName,omitempty"`
	Title                string `json:"title,omitempty"`

	Exposures   float64 `json:"exposures"`
	Conversions float64 `json:"conversions"`

	ActionCards   []report.ActionCardSummary   `json:"actionCards"`
	TermRows      []report.TermConversionRow   `json:"termRows"`
	AllTermRows   []report.AllTermConversion   `json:"allTermRows"`
	Templates     []report.TemplateExposure    `json:"templates"`
	Subscriptions *report.SubscriptionSummary  `json:"subscriptions,omitempty"`
	Days          []models.PeriodRow           `json:"days,omitempty"`
	FlatRows      []report.FlatRow             `json:"flatRows,omitempty"`
}

// Session holds the authoritative state. All mutation happens under one
// lock, so a transition and its projections are atomic; overlapping
// report fetches resolve last-writer-wins — whichever SetReport call
// completes last owns lastData, and the earlier result is silently
// discarded.
type Session struct {
	mu     sync.Mutex
	logger *zap.Logger

	data    *models.ReportData
	raw     json.RawMessage
	fetchID string

	selectedActionCardID string
	selectedTemplateName string

	// Derived once per report replacement, immutable afterwards.
	exposures   *report.ExposureIndex
	actionCards []report.ActionCardSummary
	termRows    []report.TermConversionRow
	allTermRows []report.AllTermConversion
	flatRows    []report.FlatRow
}

// New creates an empty session.
func New(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// SetReport replaces the report set wholesale, clears both selection
// cursors and rebuilds every derived structure. Returns the fetch id
// assigned to this result.
func (s *Session) SetReport(data *models.ReportData, raw json.RawMessage) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	s.raw = raw
	s.fetchID = id
	s.selectedActionCardID = ""
	s.selectedTemplateName = ""

	var rows []models.ReportRow
	if data != nil {
		rows = data.Rows
	}
	s.exposures = report.BuildExposureIndex(rows)
	s.actionCards = s.exposures.Summaries()
	s.termRows = report.BuildTermConversionRows(rows)
	s.allTermRows = report.BuildAllTermConversions(rows)
	s.flatRows = report.FlattenRows(rows)

	s.logger.Info("report loaded",
		zap.String("fetch_id", id),
		zap.Int("rows", len(rows)),
		zap.Int("action_cards", len(s.actionCards)),
	)
	return id
}

// ClickActionCard applies toggle semantics: clicking the selected card
// deselects it, clicking another selects it and clears the template
// filter. Returns the post-transition view.
func (s *Session) ClickActionCard(id string) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selectedActionCardID == id {
		s.selectedActionCardID = ""
	} else {
		s.selectedActionCardID = id
	}
	s.selectedTemplateName = ""
	return s.viewLocked()
}

// ClickTemplate toggles the template filter within the selected action
// card. It is invalid while no action card is selected.
func (s *Session) ClickTemplate(name string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selectedActionCardID == "" {
		return View{}, ErrNoActionCardSelected
	}
	if s.selectedTemplateName == name {
		s.selectedTemplateName = ""
	} else {
		s.selectedTemplateName = name
	}
	return s.viewLocked(), nil
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// LastRaw returns the raw JSON of the authoritative report, for the CSV
// bundle endpoint.
func (s *Session) LastRaw() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return nil, false
	}
	return s.raw, true
}

func (s *Session) viewLocked() View {
	v := View{
		Loaded:               s.data != nil,
		FetchID:              s.fetchID,
		SelectedActionCardID: s.selectedActionCardID,
		SelectedTemplateName: s.selectedTemplateName,
		ActionCards:          s.actionCards,
		AllTermRows:          s.allTermRows,
		FlatRows:             s.flatRows,
	}
	if s.data != nil {
		v.Exposures = float64(s.data.Exposures)
		v.Conversions = float64(s.data.Conversions)
		v.Days = s.data.TotalsByPeriods.ByCadence("days")
	}
	// The scoped projections need a report; a click that arrives before
	// any load only moves the cursor.
	if s.selectedActionCardID == "" || s.data == nil {
		return v
	}

	// Projections scoped to the selected action card. These are
	// independent pure functions of (data, cursors); they only need to
	// agree on the state they were computed from, which the lock
	// guarantees.
	v.TermRows = s.visibleTermRowsLocked()
	v.Templates = s.exposures.TemplatesFor(s.selectedActionCardID)
	sub := report.SummarizeSubscriptions(s.data.Rows, s.selectedActionCardID)
	v.Subscriptions = &sub
	v.Title = s.titleLocked()
	return v
}

func (s *Session) visibleTermRowsLocked() []report.TermConversionRow {
	var out []report.TermConversionRow
	for _, row := range s.termRows {
		if row.ActionCardID != s.selectedActionCardID {
			continue
		}
		if s.selectedTemplateName != "" && row.TemplateName != s.selectedTemplateName {
			continue
		}
		out = append(out, row)
	}
	return out
}

func (s *Session) titleLocked() string {
	name := s.exposures.ActionCardName(s.selectedActionCardID)
	if name == "" {
		name = s.selectedActionCardID
	}
	return "Selected Action: " + name
}
