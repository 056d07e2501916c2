package storage

import (
	"context"
	"encoding/json"

	"github.com/arizent/composer-insights/internal/models"
)

// =============================================
// BRAND DIRECTORY
// =============================================

// BrandRepo defines operations for the brand directory. The directory
// maps publication names to Piano application ids.
type BrandRepo interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, aid string) (*models.Brand, error)
	UpsertBrand(ctx context.Context, b models.Brand) error
}

// =============================================
// FORM STATE
// =============================================

// StateStore persists the dashboard form state as an opaque JSON blob.
// A missing state is (nil, nil), not an error.
type StateStore interface {
	LoadState(ctx context.Context) (json.RawMessage, error)
	SaveState(ctx context.Context, state json.RawMessage) error
}

// =============================================
// CAPTURED TOKENS
// =============================================

// TokenStore persists the most recently captured bearer token. A store
// holds at most one token; each capture overwrites the previous one.
// A missing token is (nil, nil), not an error.
type TokenStore interface {
	LoadToken(ctx context.Context) (*models.CapturedToken, error)
	SaveToken(ctx context.Context, tok models.CapturedToken) error
	ClearToken(ctx context.Context) error
}
