package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/engine"
	"github.com/dshills/gigsearch/pkg/types"
)

// importFile is the JSON layout accepted by the import command
type importFile struct {
	Freelancers []importRecord `json:"freelancers"`
}

type importRecord struct {
	FreelancerID int64   `json:"freelancer_id"`
	Title        string  `json:"title"`
	Skills       string  `json:"skills"`
	Bio          string  `json:"bio"`
	Tags         string  `json:"tags"`
	Category     string  `json:"category"`
	MinBudget    float64 `json:"min_budget"`
	MaxBudget    float64 `json:"max_budget"`
	Experience   int     `json:"experience"`
	Location     string  `json:"location"`
	Rating       float64 `json:"rating"`
	Portfolio    []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"portfolio"`
}

func (r importRecord) profile() (*types.FreelancerProfile, error) {
	category := types.CanonicalCategory(r.Category)
	if category == "" && r.Category != "" {
		return nil, &types.ValidationError{Field: "category", Value: r.Category, Reason: "unknown category"}
	}
	return &types.FreelancerProfile{
		FreelancerID: r.FreelancerID,
		Title:        r.Title,
		Skills:       r.Skills,
		Bio:          r.Bio,
		Tags:         r.Tags,
		Category:     category,
		MinBudget:    r.MinBudget,
		MaxBudget:    r.MaxBudget,
		Experience:   r.Experience,
		Location:     r.Location,
		Rating:       r.Rating,
	}, nil
}

type importSummary struct {
	Imported      int      `json:"imported"`
	Rejected      int      `json:"rejected"`
	IndexFailures int      `json:"index_failures"`
	Errors        []string `json:"errors,omitempty"`
}

func readImportFile(path string) (*importFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	var f importFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	return &f, nil
}

func (rt *runtime) importProfiles(c *cli.Context) error {
	f, err := readImportFile(c.String("file"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	rt.cfg.Bootstrap.OnStart = false

	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		var sum importSummary
		for _, rec := range f.Freelancers {
			if err := importOne(ctx, eng, rec); err != nil {
				sum.Rejected++
				sum.Errors = append(sum.Errors, fmt.Sprintf("freelancer %d: %v", rec.FreelancerID, err))
				continue
			}
			sum.Imported++
			if res := eng.OnProfileChanged(ctx, rec.FreelancerID); !res.OK() {
				sum.IndexFailures++
				rt.logger.Warn("imported profile not fully indexed",
					zap.Int64("freelancer_id", rec.FreelancerID), zap.Error(res.Err()))
			}
		}
		return rt.print(sum)
	})
}

// importOne replaces the profile and its whole portfolio
func importOne(ctx context.Context, eng *engine.Engine, rec importRecord) error {
	p, err := rec.profile()
	if err != nil {
		return err
	}
	store := eng.Store()
	if err := store.UpsertProfile(ctx, p); err != nil {
		return err
	}

	existing, err := store.GetPortfolioItems(ctx, rec.FreelancerID)
	if err != nil {
		return err
	}
	for _, item := range existing {
		if _, err := store.DeletePortfolioItem(ctx, item.ID); err != nil {
			return err
		}
	}
	for _, p := range rec.Portfolio {
		item := &types.PortfolioItem{FreelancerID: rec.FreelancerID, Title: p.Title, Description: p.Description}
		if err := store.AddPortfolioItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}
