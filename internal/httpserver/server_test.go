package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/config"
	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/piano"
	"github.com/arizent/composer-insights/internal/session"
	"github.com/arizent/composer-insights/internal/storage"
	"github.com/arizent/composer-insights/internal/tokenrelay"
	"github.com/arizent/composer-insights/internal/trends"
)

type fakePiano struct {
	lastQuery  piano.ReportQuery
	lastBearer string
	data       *models.ReportData
	raw        json.RawMessage
	err        error

	experiences []piano.Experience
	expErr      error
}

func (f *fakePiano) FetchReport(ctx context.Context, q piano.ReportQuery, bearer string) (*models.ReportData, json.RawMessage, error) {
	f.lastQuery = q
	f.lastBearer = bearer
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.data, f.raw, nil
}

func (f *fakePiano) FetchExperiences(ctx context.Context, dashboardURL, aid, bearer string) ([]piano.Experience, error) {
	if f.expErr != nil {
		return nil, f.expErr
	}
	return f.experiences, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Piano: config.PianoConfig{
			BaseURL:      "https://prod-ai-report-api.piano.io/report/composer/conversion",
			DefaultAID:   "N8sydUSDcX",
			DefaultExpID: "EXCTYT87DM0F",
			Timeout:      5 * time.Second,
		},
		Relay: config.RelayConfig{
			WatchedURLPatterns: []string{"https://prod-ai-report-api.piano.io/report/composer/conversion"},
			TokenWait:          20 * time.Millisecond,
		},
		Trends: config.TrendsConfig{CacheTTL: time.Minute, MaxDays: 14},
	}
}

func newTestServer(fake *fakePiano) *Server {
	logger := zap.NewNop()
	cfg := testConfig()
	tokenStore := storage.NewInMemoryTokenStore()
	return &Server{
		piano:      fake,
		brandRepo:  storage.NewInMemoryBrandRepo(),
		stateStore: storage.NewInMemoryStateStore(),
		tokenStore: tokenStore,
		relay:      tokenrelay.New(cfg.Relay.WatchedURLPatterns, cfg.Relay.TokenWait, tokenStore, logger),
		trends:     trends.New(fake, nil, cfg.Trends.CacheTTL, cfg.Trends.MaxDays, logger),
		session:    session.New(logger),
		logger:     logger,
		config:     cfg,
	}
}

func reportPayload() (*models.ReportData, json.RawMessage) {
	raw := json.RawMessage(`{
		"exposures": 100, "conversions": 40,
		"rows": [{"exposures": 100, "conversions": 40,
			"conversionSetMetadata": {
				"category": {"id": "Purchase"},
				"actionCard": {"id": "AC1", "name": "Offer card"},
				"template": {"name": "Banner"},
				"term": {"id": "TM1", "name": "Monthly"}}}]
	}`)
	var data models.ReportData
	_ = json.Unmarshal(raw, &data)
	return &data, raw
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleReportMissingBearer(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/report", `{"aid":"N8sydUSDcX"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing bearer token"}`, w.Body.String())
}

func TestHandleReportSuccess(t *testing.T) {
	data, raw := reportPayload()
	fake := &fakePiano{data: data, raw: raw}
	s := newTestServer(fake)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/report",
		`{"brand":"Digital Insurance","from":"2026-08-01","to":"2026-08-28","bearer":"tok-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.JSONEq(t, string(raw), string(resp.Data))

	// Brand name resolved to its aid, defaults filled in.
	assert.Equal(t, "N8sydUSDcX", fake.lastQuery.AID)
	assert.Equal(t, "EXCTYT87DM0F", fake.lastQuery.ExpID)
	assert.Equal(t, "tok-1", fake.lastBearer)

	// The session now serves the loaded report.
	view := s.session.View()
	assert.True(t, view.Loaded)
	require.Len(t, view.ActionCards, 1)
	assert.Equal(t, "Offer card", view.ActionCards[0].Name)
}

func TestHandleReportBearerFromHeader(t *testing.T) {
	data, raw := reportPayload()
	fake := &fakePiano{data: data, raw: raw}
	s := newTestServer(fake)

	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer header-tok")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header-tok", fake.lastBearer)
}

func TestHandleReportBearerFromRelay(t *testing.T) {
	data, raw := reportPayload()
	fake := &fakePiano{data: data, raw: raw}
	s := newTestServer(fake)

	require.NoError(t, s.tokenStore.SaveToken(context.Background(),
		models.CapturedToken{Token: "stored-tok", CapturedAt: time.Now()}))

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/report", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stored-tok", fake.lastBearer)
}

func TestHandleReportUpstreamFailure(t *testing.T) {
	fake := &fakePiano{err: &piano.StatusError{StatusCode: 401, Body: "expired token"}}
	s := newTestServer(fake)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/report", `{"bearer":"tok"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "401")
}

func TestHandleCSV(t *testing.T) {
	s := newTestServer(&fakePiano{})
	_, raw := reportPayload()

	body, _ := json.Marshal(map[string]json.RawMessage{"data": raw})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/csv", string(body))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK    bool              `json:"ok"`
		Files map[string]string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Files, "summary_totals.csv")
	assert.Contains(t, resp.Files, "rows.csv")
	assert.Contains(t, resp.Files, "action_cards.csv")
	assert.Contains(t, resp.Files, "totals_by_periods_days.csv")
}

func TestHandleCSVFallsBackToSession(t *testing.T) {
	s := newTestServer(&fakePiano{})

	// Nothing loaded yet.
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/csv", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	data, raw := reportPayload()
	s.session.SetReport(data, raw)
	w = doJSON(t, s.Handler(), http.MethodPost, "/api/csv", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleBrands(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/brands", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK     bool           `json:"ok"`
		Brands []models.Brand `json:"brands"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Brands, 7)
	assert.Equal(t, "Accounting Today", resp.Brands[0].Name)
}

func TestHandleExperiences(t *testing.T) {
	fake := &fakePiano{experiences: []piano.Experience{
		{ID: "EX1", Title: "Meter", Status: "LIVE"},
		{ID: "EX2", Title: "Paywall", Status: "live"},
		{ID: "EX3", Title: "Old meter", Status: ""},
	}}
	s := newTestServer(fake)

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/experiences?aid=N8sydUSDcX&bearer=tok", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK          bool                          `json:"ok"`
		Experiences map[string][]piano.Experience `json:"experiences"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Experiences["LIVE"], 2)
	assert.Len(t, resp.Experiences["OFFLINE"], 1)
}

func TestHandleTrends(t *testing.T) {
	data, raw := reportPayload()
	fake := &fakePiano{data: data, raw: raw}
	s := newTestServer(fake)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/trends",
		`{"from":"2026-08-01","to":"2026-08-02","cadence":"days","bearer":"tok"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK     bool           `json:"ok"`
		Trends *trends.Result `json:"trends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Trends)
	assert.Equal(t, []string{"2026-08-01", "2026-08-02"}, resp.Trends.Labels)
	require.Len(t, resp.Trends.Actions, 1)
	assert.Equal(t, "Offer card", resp.Trends.Actions[0].Name)
}

func TestHandleTrendsBadRange(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/trends",
		`{"from":"2026-08-02","to":"2026-08-01","bearer":"tok"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleStateRoundTrip(t *testing.T) {
	s := newTestServer(&fakePiano{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = doJSON(t, h, http.MethodPut, "/api/state", `{"brand":"Bond Buyer","expId":"EX9"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"brand":"Bond Buyer","expId":"EX9"}`, w.Body.String())
}

func TestSessionEndpointsFlow(t *testing.T) {
	s := newTestServer(&fakePiano{})
	h := s.Handler()
	_, raw := reportPayload()

	// Template click before any selection is rejected.
	w := doJSON(t, h, http.MethodPost, "/api/session/template", `{"templateName":"Banner"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/session/report", string(raw))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/session/action-card", `{"actionCardId":"AC1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var view session.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "AC1", view.SelectedActionCardID)

	w = doJSON(t, h, http.MethodPost, "/api/session/template", `{"templateName":"Banner"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Banner", view.SelectedTemplateName)

	w = doJSON(t, h, http.MethodGet, "/api/session/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.Loaded)
	assert.Equal(t, "Banner", view.SelectedTemplateName)
}

func TestSessionActionCardValidation(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/session/action-card", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionActionCardBeforeReport(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/session/action-card", `{"actionCardId":"AC1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view session.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.False(t, view.Loaded)
	assert.Equal(t, "AC1", view.SelectedActionCardID)
}

func TestRelayInterceptAndToken(t *testing.T) {
	s := newTestServer(&fakePiano{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/relay/token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/relay/intercept", `{
		"method": "GET",
		"url": "https://prod-ai-report-api.piano.io/report/composer/conversion?aid=x",
		"authorization": "Bearer captured-tok"
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"captured":true}`, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/relay/token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "captured-tok", resp.Token)
}

func TestRelayInterceptIgnoresPost(t *testing.T) {
	s := newTestServer(&fakePiano{})
	w := doJSON(t, s.Handler(), http.MethodPost, "/relay/intercept", `{
		"method": "POST",
		"url": "https://prod-ai-report-api.piano.io/report/composer/conversion",
		"authorization": "Bearer t"
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"captured":false}`, w.Body.String())
}

func TestDashboard(t *testing.T) {
	s := newTestServer(&fakePiano{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No report loaded")

	data, raw := reportPayload()
	s.session.SetReport(data, raw)
	s.session.ClickActionCard("AC1")

	w = doJSON(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<table id="actionCards">`)
	assert.Contains(t, body, "Offer card")
	assert.Contains(t, body, `data-key="AC1" checked`)
	assert.Contains(t, body, `<table id="termRows">`)

	// Unknown paths fall through to 404, not the dashboard.
	w = doJSON(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakePiano{})
	h := s.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/report"},
		{http.MethodPost, "/api/brands"},
		{http.MethodDelete, "/api/state"},
		{http.MethodGet, "/relay/intercept"},
	} {
		w := doJSON(t, h, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestUpstreamAuthVocabulary(t *testing.T) {
	fake := &fakePiano{err: errors.New("request unauthorized")}
	s := newTestServer(fake)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/report", `{"bearer":"tok"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
