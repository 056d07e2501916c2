// Package trends builds per-period conversion trend series by slicing
// a date range into periods and fetching one conversion report per
// period. Period reports are cached in Redis so repeated dashboard
// loads do not hammer the upstream API.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/piano"
	"github.com/arizent/composer-insights/internal/report"
)

const dateLayout = "2006-01-02"

// ReportFetcher fetches one conversion report. *piano.Client satisfies
// it; tests supply fakes.
type ReportFetcher interface {
	FetchReport(ctx context.Context, q piano.ReportQuery, bearer string) (*models.ReportData, json.RawMessage, error)
}

// Period is one slice of the requested range.
type Period struct {
	Label string
	From  time.Time
	To    time.Time
}

// Series is one named line on a trend chart, aligned with the result's
// Labels.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Result is the trends payload: per-action-card exposure series and
// per-term conversion series over the same period labels.
type Result struct {
	Labels    []string `json:"labels"`
	Actions   []Series `json:"actions"`
	Terms     []Series `json:"terms"`
	Truncated bool     `json:"truncated"`
}

// Query identifies one trends request. ActionCardIDs, when non-empty,
// restricts the action series to those cards; term series are
// unaffected.
type Query struct {
	AID           string
	ExpID         string
	Locale        string
	From          string
	To            string
	Cadence       string
	ActionCardIDs []string
}

// Builder fetches and assembles trend series.
type Builder struct {
	fetcher    ReportFetcher
	cache      *redis.Client
	cacheTTL   time.Duration
	maxPeriods int
	logger     *zap.Logger
}

// New builds a Builder. cache may be nil, which disables caching.
func New(fetcher ReportFetcher, cache *redis.Client, cacheTTL time.Duration, maxPeriods int, logger *zap.Logger) *Builder {
	return &Builder{
		fetcher:    fetcher,
		cache:      cache,
		cacheTTL:   cacheTTL,
		maxPeriods: maxPeriods,
		logger:     logger,
	}
}

// CacheOutcome reports whether a period report came from cache.
type CacheOutcome int

const (
	CacheMiss CacheOutcome = iota
	CacheHit
)

// Build fetches one report per period and assembles the series. The
// onFetch callback, if non-nil, is invoked once per period with the
// cache outcome.
func (b *Builder) Build(ctx context.Context, q Query, bearer string, onFetch func(CacheOutcome)) (*Result, error) {
	periods, truncated, err := SplitPeriods(q.From, q.To, q.Cadence, b.maxPeriods)
	if err != nil {
		return nil, err
	}

	res := &Result{Truncated: truncated}
	actionTotals := make(map[string][]float64)
	termTotals := make(map[string][]float64)

	var wanted map[string]bool
	if len(q.ActionCardIDs) > 0 {
		wanted = make(map[string]bool, len(q.ActionCardIDs))
		for _, id := range q.ActionCardIDs {
			wanted[id] = true
		}
	}

	for i, p := range periods {
		res.Labels = append(res.Labels, p.Label)

		data, outcome, err := b.periodReport(ctx, q, p, bearer)
		if err != nil {
			return nil, fmt.Errorf("trends: period %s: %w", p.Label, err)
		}
		if onFetch != nil {
			onFetch(outcome)
		}

		for _, s := range report.BuildActionCardSummaries(data.Rows) {
			if wanted != nil && !wanted[s.ID] {
				continue
			}
			name := s.Name
			if name == "" {
				name = s.ID
			}
			ensureLen(actionTotals, name, len(periods))[i] = s.Exposures
		}
		for _, t := range report.BuildTermConversionRows(data.Rows) {
			name := t.TermName
			if name == "" {
				name = t.TermID
			}
			ensureLen(termTotals, name, len(periods))[i] += t.Conversions
		}
	}

	res.Actions = toSeries(actionTotals)
	res.Terms = toSeries(termTotals)
	return res, nil
}

func (b *Builder) periodReport(ctx context.Context, q Query, p Period, bearer string) (*models.ReportData, CacheOutcome, error) {
	key := fmt.Sprintf("trends:%s:%s:%s:%s", q.AID, q.ExpID, p.From.Format(dateLayout), p.To.Format(dateLayout))

	if b.cache != nil {
		if raw, err := b.cache.Get(ctx, key).Bytes(); err == nil {
			var data models.ReportData
			if err := json.Unmarshal(raw, &data); err == nil {
				return &data, CacheHit, nil
			}
			// Corrupt entry; fall through to refetch.
			b.logger.Warn("discarding corrupt trends cache entry", zap.String("key", key))
		}
	}

	pq := piano.ReportQuery{
		AID:    q.AID,
		ExpID:  q.ExpID,
		Locale: q.Locale,
		From:   p.From.Format(dateLayout),
		To:     p.To.Format(dateLayout),
	}
	data, raw, err := b.fetcher.FetchReport(ctx, pq, bearer)
	if err != nil {
		return nil, CacheMiss, err
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, []byte(raw), b.cacheTTL).Err(); err != nil {
			b.logger.Warn("failed to cache trends period", zap.String("key", key), zap.Error(err))
		}
	}
	return data, CacheMiss, nil
}

// SplitPeriods slices [from, to] into labeled periods for the cadence.
// When the split yields more than maxPeriods periods, only the most
// recent maxPeriods are kept and truncated is true.
func SplitPeriods(from, to, cadence string, maxPeriods int) ([]Period, bool, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, false, fmt.Errorf("trends: bad from date %q: %w", from, err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, false, fmt.Errorf("trends: bad to date %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, false, fmt.Errorf("trends: to %q precedes from %q", to, from)
	}

	var periods []Period
	switch cadence {
	case "days":
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			periods = append(periods, Period{Label: d.Format(dateLayout), From: d, To: d})
		}
	case "weeks":
		for d := start; !d.After(end); d = d.AddDate(0, 0, 7) {
			wEnd := minDate(d.AddDate(0, 0, 6), end)
			periods = append(periods, Period{Label: d.Format(dateLayout), From: d, To: wEnd})
		}
	case "months":
		for d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 1, 0) {
			periods = append(periods, Period{
				Label: d.Format("2006-01"),
				From:  maxDate(d, start),
				To:    minDate(d.AddDate(0, 1, -1), end),
			})
		}
	case "quarters":
		qMonth := time.Month((int(start.Month())-1)/3*3 + 1)
		for d := time.Date(start.Year(), qMonth, 1, 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 3, 0) {
			periods = append(periods, Period{
				Label: fmt.Sprintf("%d Q%d", d.Year(), (int(d.Month())-1)/3+1),
				From:  maxDate(d, start),
				To:    minDate(d.AddDate(0, 3, -1), end),
			})
		}
	case "years":
		for d := time.Date(start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(1, 0, 0) {
			periods = append(periods, Period{
				Label: d.Format("2006"),
				From:  maxDate(d, start),
				To:    minDate(d.AddDate(1, 0, -1), end),
			})
		}
	default:
		return nil, false, fmt.Errorf("trends: unknown cadence %q", cadence)
	}

	if maxPeriods > 0 && len(periods) > maxPeriods {
		return periods[len(periods)-maxPeriods:], true, nil
	}
	return periods, false, nil
}

func ensureLen(m map[string][]float64, name string, n int) []float64 {
	if _, ok := m[name]; !ok {
		m[name] = make([]float64, n)
	}
	return m[name]
}

func toSeries(m map[string][]float64) []Series {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Series, 0, len(names))
	for _, name := range names {
		out = append(out, Series{Name: name, Values: m[name]})
	}
	return out
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
