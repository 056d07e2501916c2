package httpserver

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/render"
	"github.com/arizent/composer-insights/internal/session"
)

// handleDashboard renders the interactive report as server-side HTML.
// The page is a read-only projection of the session; clicks are posted
// back through the /api/session endpoints.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := s.session.View()
	page, err := buildDashboard(view)
	if err != nil {
		s.logger.Error("dashboard render failed", zap.Error(err))
		s.errorResponse(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func buildDashboard(view session.View) (string, error) {
	data := render.PageData{Title: "Composer Insights"}
	if !view.Loaded {
		data.Subtitle = "No report loaded. POST a report to /api/report to begin."
		page, err := render.Page(data)
		return string(page), err
	}

	data.Subtitle = "Exposures " + fnum(view.Exposures) + " / Conversions " + fnum(view.Conversions)
	if view.Title != "" {
		data.Subtitle += " — " + view.Title
	}

	cards := make([]render.Record, 0, len(view.ActionCards))
	for _, c := range view.ActionCards {
		cards = append(cards, render.Record{
			{Name: "actionCardId", Value: c.ID},
			{Name: "actionCardName", Value: c.Name},
			{Name: "exposures", Value: fnum(c.Exposures)},
		})
	}
	cardsHTML, err := render.Table(render.TableSpec{
		WidgetID:  "actionCards",
		Records:   cards,
		Clickable: true,
		Selection: &render.Selection{
			KeyField: "actionCardId",
			Selected: map[string]bool{view.SelectedActionCardID: view.SelectedActionCardID != ""},
		},
	})
	if err != nil {
		return "", err
	}
	data.Sections = append(data.Sections, render.Section{Title: "Action Cards", Body: cardsHTML})

	if len(view.Templates) > 0 {
		tmpls := make([]render.Record, 0, len(view.Templates))
		for _, t := range view.Templates {
			tmpls = append(tmpls, render.Record{
				{Name: "templateName", Value: t.TemplateName},
				{Name: "exposures", Value: fnum(t.Exposures)},
			})
		}
		tmplHTML, err := render.Table(render.TableSpec{
			WidgetID:  "templates",
			Records:   tmpls,
			Clickable: true,
			Selection: &render.Selection{
				KeyField: "templateName",
				Selected: map[string]bool{view.SelectedTemplateName: view.SelectedTemplateName != ""},
			},
		})
		if err != nil {
			return "", err
		}
		data.Sections = append(data.Sections, render.Section{Title: "Templates", Body: tmplHTML})
	}

	terms := make([]render.Record, 0, len(view.TermRows))
	for _, t := range view.TermRows {
		terms = append(terms, render.Record{
			{Name: "actionCardName", Value: t.ActionCardName},
			{Name: "templateName", Value: t.TemplateName},
			{Name: "termName", Value: t.TermName},
			{Name: "conversions", Value: fnum(t.Conversions)},
			{Name: "conversionRate", Value: t.ConversionRate},
		})
	}
	termsHTML, err := render.Table(render.TableSpec{WidgetID: "termRows", Records: terms})
	if err != nil {
		return "", err
	}
	data.Sections = append(data.Sections, render.Section{Title: "Term Conversions", Body: termsHTML})

	if view.Subscriptions != nil {
		subs := []render.Record{{
			{Name: "count", Value: strconv.FormatInt(view.Subscriptions.Count, 10)},
			{Name: "revenue", Value: strconv.FormatFloat(view.Subscriptions.Revenue, 'f', 2, 64)},
		}}
		subsHTML, err := render.Table(render.TableSpec{WidgetID: "subscriptions", Records: subs})
		if err != nil {
			return "", err
		}
		data.Sections = append(data.Sections, render.Section{Title: "Subscriptions", Body: subsHTML})

		if len(view.Subscriptions.Terms) > 0 {
			breakdown := make([]render.Record, 0, len(view.Subscriptions.Terms))
			for _, t := range view.Subscriptions.Terms {
				breakdown = append(breakdown, render.Record{
					{Name: "termName", Value: t.TermName},
					{Name: "conversions", Value: strconv.FormatInt(t.Conversions, 10)},
				})
			}
			bHTML, err := render.Table(render.TableSpec{WidgetID: "subscriptionTerms", Records: breakdown})
			if err != nil {
				return "", err
			}
			data.Sections = append(data.Sections, render.Section{Title: "Subscription Terms", Body: bHTML})
		}
	}

	audit := make([]render.Record, 0, len(view.AllTermRows))
	for _, t := range view.AllTermRows {
		audit = append(audit, render.Record{
			{Name: "actionCardName", Value: t.ActionCardName},
			{Name: "termName", Value: t.TermName},
			{Name: "conversions", Value: fnum(t.Conversions)},
		})
	}
	auditHTML, err := render.Table(render.TableSpec{WidgetID: "allTermRows", Records: audit})
	if err != nil {
		return "", err
	}
	data.Sections = append(data.Sections, render.Section{Title: "All Term Conversions", Body: auditHTML})

	if len(view.Days) > 0 {
		days := make([]render.Record, 0, len(view.Days))
		for _, d := range view.Days {
			days = append(days, render.Record{
				{Name: "date", Value: d.Date},
				{Name: "exposures", Value: fnum(float64(d.Exposures))},
				{Name: "conversions", Value: fnum(float64(d.Conversions))},
				{Name: "conversionRate", Value: d.ConversionRate.String()},
			})
		}
		daysHTML, err := render.Table(render.TableSpec{WidgetID: "days", Records: days})
		if err != nil {
			return "", err
		}
		data.Sections = append(data.Sections, render.Section{Title: "Daily Totals", Body: daysHTML})
	}

	page, err := render.Page(data)
	return string(page), err
}

func fnum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
