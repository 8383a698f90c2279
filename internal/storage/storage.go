package storage

import (
	"context"

	"github.com/dshills/gigsearch/pkg/types"
)

// ProfileStore is the read contract the search subsystem consumes from the
// primary profile store.
type ProfileStore interface {
	// GetProfile returns ErrNotFound when no row exists for id
	GetProfile(ctx context.Context, id int64) (*types.FreelancerProfile, error)

	// GetProfiles resolves many ids at once; absent ids are simply missing from the map
	GetProfiles(ctx context.Context, ids []int64) (map[int64]*types.FreelancerProfile, error)

	// GetPortfolioItems returns a freelancer's items in insertion order
	GetPortfolioItems(ctx context.Context, id int64) ([]types.PortfolioItem, error)

	ListFreelancerIDs(ctx context.Context) ([]int64, error)
	CountProfiles(ctx context.Context) (int, error)

	// BrowseProfiles lists profiles matching filters ordered by rating, then experience
	BrowseProfiles(ctx context.Context, filters types.Filters, limit int) ([]*types.FreelancerProfile, error)
}

// ProfileWriter mutates the profile tables. Every successful call must be
// followed by a reindex of the affected freelancer.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p *types.FreelancerProfile) error
	DeleteProfile(ctx context.Context, id int64) error
	AddPortfolioItem(ctx context.Context, item *types.PortfolioItem) error
	// DeletePortfolioItem returns the owning freelancer id
	DeletePortfolioItem(ctx context.Context, itemID int64) (int64, error)
}

// StateStore keeps small durable markers such as bootstrap completion.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, key string) error
}

// Well-known state keys
const (
	StateBootstrapCompleted = "bootstrap_completed"
)
