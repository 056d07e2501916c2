package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/config"
	"github.com/arizent/composer-insights/internal/csvexport"
	"github.com/arizent/composer-insights/internal/database"
	"github.com/arizent/composer-insights/internal/metrics"
	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/piano"
	"github.com/arizent/composer-insights/internal/session"
	"github.com/arizent/composer-insights/internal/storage"
	"github.com/arizent/composer-insights/internal/tokenrelay"
	"github.com/arizent/composer-insights/internal/trends"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// pianoAPI is the slice of the upstream client the handlers use. Tests
// swap in fakes.
type pianoAPI interface {
	FetchReport(ctx context.Context, q piano.ReportQuery, bearer string) (*models.ReportData, json.RawMessage, error)
	FetchExperiences(ctx context.Context, dashboardURL, aid, bearer string) ([]piano.Experience, error)
}

// Server wraps HTTP handlers and the reporting services.
type Server struct {
	piano      pianoAPI
	brandRepo  storage.BrandRepo
	stateStore storage.StateStore
	tokenStore storage.TokenStore
	relay      *tokenrelay.Relay
	trends     *trends.Builder
	session    *session.Session
	logger     *zap.Logger
	config     *config.Config
	metrics    *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	return newServer(deps).Handler()
}

func newServer(deps *Dependencies) *Server {
	// Initialize repositories
	var brandRepo storage.BrandRepo
	var stateStore storage.StateStore
	var tokenStore storage.TokenStore

	if deps.DB != nil {
		pg := storage.NewPostgresBrandRepo(deps.DB.Pool)
		if err := pg.SeedBrands(context.Background()); err != nil {
			deps.Logger.Warn("failed to seed brand directory", zap.Error(err))
		}
		brandRepo = pg
	} else {
		brandRepo = storage.NewInMemoryBrandRepo()
	}

	if deps.Redis != nil {
		stateStore = storage.NewRedisStateStore(deps.Redis.Client)
		tokenStore = storage.NewRedisTokenStore(deps.Redis.Client)
	} else {
		stateStore = storage.NewInMemoryStateStore()
		tokenStore = storage.NewInMemoryTokenStore()
	}

	relay := tokenrelay.New(
		deps.Config.Relay.WatchedURLPatterns,
		deps.Config.Relay.TokenWait,
		tokenStore,
		deps.Logger,
	)

	client := piano.New(deps.Config.Piano.BaseURL, deps.Config.Piano.Timeout, deps.Logger)

	var trendsCache *database.RedisDB
	if deps.Redis != nil {
		trendsCache = deps.Redis
	}
	var trendsBuilder *trends.Builder
	if trendsCache != nil {
		trendsBuilder = trends.New(client, trendsCache.Client, deps.Config.Trends.CacheTTL, deps.Config.Trends.MaxDays, deps.Logger)
	} else {
		trendsBuilder = trends.New(client, nil, deps.Config.Trends.CacheTTL, deps.Config.Trends.MaxDays, deps.Logger)
	}

	return &Server{
		piano:      client,
		brandRepo:  brandRepo,
		stateStore: stateStore,
		tokenStore: tokenStore,
		relay:      relay,
		trends:     trendsBuilder,
		session:    session.New(deps.Logger),
		logger:     deps.Logger,
		config:     deps.Config,
		metrics:    deps.Metrics,
	}
}

// Handler registers all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("/", s.handleDashboard)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, metrics.Handler())
	}

	// Report proxy
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/csv", s.handleCSV)
	mux.HandleFunc("/api/brands", s.handleBrands)
	mux.HandleFunc("/api/experiences", s.handleExperiences)
	mux.HandleFunc("/api/trends", s.handleTrends)

	// Form state
	mux.HandleFunc("/api/state", s.handleState)

	// Session (interactive view)
	mux.HandleFunc("/api/session/report", s.handleSessionReport)
	mux.HandleFunc("/api/session/action-card", s.handleSessionActionCard)
	mux.HandleFunc("/api/session/template", s.handleSessionTemplate)
	mux.HandleFunc("/api/session/view", s.handleSessionView)

	// Token relay
	mux.HandleFunc("/relay/intercept", s.handleRelayIntercept)
	mux.HandleFunc("/relay/token", s.handleRelayToken)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Report Proxy ----

type reportRequest struct {
	Brand   string `json:"brand"`
	AID     string `json:"aid"`
	ExpID   string `json:"expId"`
	Locale  string `json:"ln"`
	From    string `json:"from"`
	To      string `json:"to"`
	Bearer  string `json:"bearer"`
	BaseURL string `json:"baseUrl"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	q, err := s.resolveQuery(r.Context(), req)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	bearer := s.resolveBearer(r.Context(), req.Bearer, r)
	if bearer == "" {
		s.errorResponse(w, "Missing bearer token", http.StatusBadRequest)
		return
	}

	start := time.Now()
	data, raw, err := s.piano.FetchReport(r.Context(), q, bearer)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordReportFetch("error", q.AID, time.Since(start))
			if piano.IsAuthError(err) {
				s.metrics.RecordAuthFailure(q.AID)
			}
		}
		s.logger.Error("report fetch failed",
			zap.String("aid", q.AID),
			zap.String("exp_id", q.ExpID),
			zap.Error(err),
		)
		s.errorResponse(w, err.Error(), http.StatusBadGateway)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordReportFetch("ok", q.AID, time.Since(start))
	}

	fetchID := s.session.SetReport(data, raw)
	s.logger.Info("report loaded",
		zap.String("aid", q.AID),
		zap.String("exp_id", q.ExpID),
		zap.String("fetch_id", fetchID),
		zap.Int("rows", len(data.Rows)),
	)

	s.jsonResponse(w, map[string]interface{}{"ok": true, "data": raw})
}

// resolveQuery fills defaults and translates a brand name into its aid.
func (s *Server) resolveQuery(ctx context.Context, req reportRequest) (piano.ReportQuery, error) {
	aid := req.AID
	if aid == "" && req.Brand != "" {
		brands, err := s.brandRepo.ListBrands(ctx)
		if err != nil {
			s.logger.Warn("brand lookup failed", zap.Error(err))
		}
		for _, b := range brands {
			if strings.EqualFold(b.Name, req.Brand) {
				aid = b.AID
				break
			}
		}
	}
	if aid == "" {
		aid = s.config.Piano.DefaultAID
	}
	expID := req.ExpID
	if expID == "" {
		expID = s.config.Piano.DefaultExpID
	}
	return piano.ReportQuery{
		AID:     aid,
		ExpID:   expID,
		Locale:  req.Locale,
		From:    req.From,
		To:      req.To,
		BaseURL: req.BaseURL,
	}, nil
}

// resolveBearer picks the request's explicit token, then the
// Authorization header, then whatever the relay can supply within its
// advisory wait.
func (s *Server) resolveBearer(ctx context.Context, explicit string, r *http.Request) string {
	if explicit != "" {
		return explicit
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		const scheme = "bearer "
		if len(auth) > len(scheme) && strings.EqualFold(auth[:len(scheme)], scheme) {
			return strings.TrimSpace(auth[len(scheme):])
		}
	}
	tok, err := s.relay.WaitToken(ctx, "")
	if err != nil || tok == nil {
		if s.metrics != nil {
			s.metrics.RecordTokenWait(false)
		}
		return ""
	}
	if s.metrics != nil {
		s.metrics.RecordTokenWait(true)
	}
	return tok.Token
}

// ---- CSV Export ----

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	raw := req.Data
	if len(raw) == 0 {
		// Fall back to the last loaded report.
		last, ok := s.session.LastRaw()
		if !ok {
			s.errorResponse(w, "no report data", http.StatusBadRequest)
			return
		}
		raw = last
	}

	var data models.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.errorResponse(w, "invalid report data", http.StatusBadRequest)
		return
	}

	files := csvexport.BuildAll(&data)
	if s.metrics != nil {
		s.metrics.RecordCSVBundle()
	}
	s.logger.Info("csv bundle built", zap.Int("files", len(files)))

	s.jsonResponse(w, map[string]interface{}{"ok": true, "files": files})
}

// ---- Brand Directory ----

func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	brands, err := s.brandRepo.ListBrands(r.Context())
	if err != nil {
		s.logger.Error("failed to list brands", zap.Error(err))
		s.errorResponse(w, "failed to list brands", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"ok": true, "brands": brands})
}

// ---- Experiences ----

const dashboardExperiencesURL = "https://dashboard.piano.io/api/v3/conversionReport/experiences"

func (s *Server) handleExperiences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	aid := r.URL.Query().Get("aid")
	if aid == "" {
		aid = s.config.Piano.DefaultAID
	}

	bearer := s.resolveBearer(r.Context(), r.URL.Query().Get("bearer"), r)
	if bearer == "" {
		s.errorResponse(w, "Missing bearer token", http.StatusBadRequest)
		return
	}

	list, err := s.piano.FetchExperiences(r.Context(), dashboardExperiencesURL, aid, bearer)
	if err != nil {
		if s.metrics != nil && piano.IsAuthError(err) {
			s.metrics.RecordAuthFailure(aid)
		}
		s.logger.Error("experiences fetch failed", zap.String("aid", aid), zap.Error(err))
		s.errorResponse(w, err.Error(), http.StatusBadGateway)
		return
	}

	// Group by lifecycle status so the dashboard can render LIVE,
	// SCHEDULED and OFFLINE sections without re-sorting.
	groups := map[string][]piano.Experience{}
	for _, exp := range list {
		status := strings.ToUpper(exp.Status)
		if status == "" {
			status = "OFFLINE"
		}
		groups[status] = append(groups[status], exp)
	}

	s.jsonResponse(w, map[string]interface{}{"ok": true, "experiences": groups})
}

// ---- Trends ----

type trendsRequest struct {
	Brand         string   `json:"brand"`
	AID           string   `json:"aid"`
	ExpID         string   `json:"expId"`
	Locale        string   `json:"ln"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Cadence       string   `json:"cadence"`
	Bearer        string   `json:"bearer"`
	ActionCardIDs []string `json:"actionCardIds"`
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trendsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	cadence := req.Cadence
	if cadence == "" {
		cadence = "days"
	}

	q, _ := s.resolveQuery(r.Context(), reportRequest{
		Brand: req.Brand, AID: req.AID, ExpID: req.ExpID,
		Locale: req.Locale, From: req.From, To: req.To,
	})

	bearer := s.resolveBearer(r.Context(), req.Bearer, r)
	if bearer == "" {
		s.errorResponse(w, "Missing bearer token", http.StatusBadRequest)
		return
	}

	result, err := s.trends.Build(r.Context(), trends.Query{
		AID:           q.AID,
		ExpID:         q.ExpID,
		Locale:        q.Locale,
		From:          q.From,
		To:            q.To,
		Cadence:       cadence,
		ActionCardIDs: req.ActionCardIDs,
	}, bearer, func(outcome trends.CacheOutcome) {
		if s.metrics != nil {
			s.metrics.RecordTrendsCache(outcome == trends.CacheHit)
		}
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTrendRequest(cadence, "error")
		}
		s.logger.Error("trends build failed", zap.String("cadence", cadence), zap.Error(err))
		s.errorResponse(w, err.Error(), http.StatusBadGateway)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTrendRequest(cadence, "ok")
	}

	s.jsonResponse(w, map[string]interface{}{"ok": true, "trends": result})
}

// ---- Form State ----

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state, err := s.stateStore.LoadState(r.Context())
		if err != nil {
			s.logger.Error("failed to load state", zap.Error(err))
			s.errorResponse(w, "failed to load state", http.StatusInternalServerError)
			return
		}
		if state == nil {
			state = json.RawMessage(`{}`)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(state)

	case http.MethodPut, http.MethodPost:
		body, err := decodeRawObject(r)
		if err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.stateStore.SaveState(r.Context(), body); err != nil {
			s.logger.Error("failed to save state", zap.Error(err))
			s.errorResponse(w, "failed to save state", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]interface{}{"ok": true})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func decodeRawObject(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ---- Session ----

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := decodeRawObject(r)
	if err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	var data models.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.errorResponse(w, "invalid report data", http.StatusBadRequest)
		return
	}

	s.session.SetReport(&data, raw)
	s.jsonResponse(w, s.session.View())
}

func (s *Server) handleSessionActionCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ActionCardID string `json:"actionCardId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ActionCardID == "" {
		s.errorResponse(w, "actionCardId required", http.StatusBadRequest)
		return
	}

	s.jsonResponse(w, s.session.ClickActionCard(req.ActionCardID))
}

func (s *Server) handleSessionTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TemplateName string `json:"templateName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.TemplateName == "" {
		s.errorResponse(w, "templateName required", http.StatusBadRequest)
		return
	}

	view, err := s.session.ClickTemplate(req.TemplateName)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	s.jsonResponse(w, view)
}

func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.session.View())
}

// ---- Token Relay ----

func (s *Server) handleRelayIntercept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenrelay.InterceptedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	captured := s.relay.Capture(r.Context(), req)
	if captured && s.metrics != nil {
		s.metrics.RecordTokenCapture()
	}
	s.jsonResponse(w, map[string]interface{}{"ok": true, "captured": captured})
}

func (s *Server) handleRelayToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tok, err := s.relay.WaitToken(r.Context(), r.URL.Query().Get("origin"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTokenWait(tok != nil)
	}
	if tok == nil {
		s.errorResponse(w, "no token captured", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"ok": true, "token": tok.Token, "capturedAt": tok.CapturedAt})
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
