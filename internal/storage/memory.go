package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/arizent/composer-insights/internal/models"
)

// defaultBrands is the built-in directory used when no database is
// configured. The ids are the Piano application ids of the Arizent
// publications.
var defaultBrands = []models.Brand{
	{Name: "Accounting Today", AID: "BOmg9kapee"},
	{Name: "American Banker", AID: "XUnXNMUrFF"},
	{Name: "Digital Insurance", AID: "N8sydUSDcX"},
	{Name: "Employee Benefit News", AID: "t7vpsMsOZy"},
	{Name: "Financial Planning", AID: "RXUl28joTX"},
	{Name: "National Mortgage News", AID: "DqBrRoNVmq"},
	{Name: "Bond Buyer", AID: "x2vmB6Jdyn"},
}

// InMemoryBrandRepo is a map-backed BrandRepo seeded with the built-in
// directory. It is used when PostgreSQL is unavailable and in tests.
type InMemoryBrandRepo struct {
	mu     sync.RWMutex
	brands map[string]models.Brand
}

// NewInMemoryBrandRepo creates a repo pre-seeded with the default
// brand directory.
func NewInMemoryBrandRepo() *InMemoryBrandRepo {
	r := &InMemoryBrandRepo{brands: make(map[string]models.Brand, len(defaultBrands))}
	for _, b := range defaultBrands {
		r.brands[b.AID] = b
	}
	return r
}

// ListBrands returns all brands sorted by name.
func (r *InMemoryBrandRepo) ListBrands(ctx context.Context) ([]models.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]models.Brand, 0, len(r.brands))
	for _, b := range r.brands {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// GetBrand returns the brand with the given aid or nil if not found.
func (r *InMemoryBrandRepo) GetBrand(ctx context.Context, aid string) (*models.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.brands[aid]; ok {
		return &b, nil
	}
	return nil, nil
}

// UpsertBrand inserts or updates the given brand.
func (r *InMemoryBrandRepo) UpsertBrand(ctx context.Context, b models.Brand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brands[b.AID] = b
	return nil
}

// InMemoryStateStore keeps the form state in process memory. State is
// lost on restart, which matches the no-Redis degraded mode.
type InMemoryStateStore struct {
	mu    sync.RWMutex
	state json.RawMessage
}

func NewInMemoryStateStore() *InMemoryStateStore { return &InMemoryStateStore{} }

func (s *InMemoryStateStore) LoadState(ctx context.Context) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	cp := make(json.RawMessage, len(s.state))
	copy(cp, s.state)
	return cp, nil
}

func (s *InMemoryStateStore) SaveState(ctx context.Context, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(json.RawMessage, len(state))
	copy(cp, state)
	s.state = cp
	return nil
}

// InMemoryTokenStore keeps the captured token in process memory.
type InMemoryTokenStore struct {
	mu  sync.RWMutex
	tok *models.CapturedToken
}

func NewInMemoryTokenStore() *InMemoryTokenStore { return &InMemoryTokenStore{} }

func (s *InMemoryTokenStore) LoadToken(ctx context.Context) (*models.CapturedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return nil, nil
	}
	cp := *s.tok
	return &cp, nil
}

func (s *InMemoryTokenStore) SaveToken(ctx context.Context, tok models.CapturedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = &tok
	return nil
}

func (s *InMemoryTokenStore) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}
