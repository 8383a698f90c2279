package engine

import (
	"context"
	"fmt"

	"github.com/dshills/gigsearch/internal/indexer"
	"github.com/dshills/gigsearch/pkg/types"
)

// UpsertProfile writes a profile and reindexes it. A write error means no
// reindex happened; index failures are reported in the Result.
func (e *Engine) UpsertProfile(ctx context.Context, p *types.FreelancerProfile) (indexer.Result, error) {
	if err := e.db.UpsertProfile(ctx, p); err != nil {
		return indexer.Result{FreelancerID: p.FreelancerID}, fmt.Errorf("upsert profile: %w", err)
	}
	return e.OnProfileChanged(ctx, p.FreelancerID), nil
}

// DeleteProfile removes a profile and its portfolio, then drops the
// freelancer from both indexes.
func (e *Engine) DeleteProfile(ctx context.Context, id int64) (indexer.Result, error) {
	if err := e.db.DeleteProfile(ctx, id); err != nil {
		return indexer.Result{FreelancerID: id}, fmt.Errorf("delete profile: %w", err)
	}
	return e.OnProfileChanged(ctx, id), nil
}

// AddPortfolioItem stores item and reindexes its owner
func (e *Engine) AddPortfolioItem(ctx context.Context, item *types.PortfolioItem) (indexer.Result, error) {
	if err := e.db.AddPortfolioItem(ctx, item); err != nil {
		return indexer.Result{FreelancerID: item.FreelancerID}, fmt.Errorf("add portfolio item: %w", err)
	}
	return e.OnProfileChanged(ctx, item.FreelancerID), nil
}

// DeletePortfolioItem removes an item and reindexes its owner
func (e *Engine) DeletePortfolioItem(ctx context.Context, itemID int64) (indexer.Result, error) {
	owner, err := e.db.DeletePortfolioItem(ctx, itemID)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("delete portfolio item: %w", err)
	}
	return e.OnProfileChanged(ctx, owner), nil
}
