package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

// ErrBootstrapInProgress is returned when a bootstrap is already running
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// maxReportedErrors caps BootstrapReport.Errors
const maxReportedErrors = 10

// Store is what the indexer reads from the profile store
type Store interface {
	storage.ProfileStore
	storage.StateStore
}

// SemanticIndex is the vector side of a reindex
type SemanticIndex interface {
	Upsert(ctx context.Context, id int64, text string) error
	Stage(ctx context.Context, id int64, text string) error
	Flush() error
	Remove(ctx context.Context, id int64) error
	Len() (int, error)
}

// Config contains configuration for the indexer
type Config struct {
	Workers int // Bootstrap workers (default: NumCPU/2, at least 1)
}

// Indexer keeps the lexical and semantic indexes in step with the profile store
type Indexer struct {
	store    Store
	lexical  lexical.Index
	semantic SemanticIndex
	logger   *zap.Logger

	workers int
	lock    IndexLock
}

// Result reports the outcome of one reindex. The two indexes fail independently.
type Result struct {
	FreelancerID int64
	Deleted      bool // profile was absent, so the id was removed from both indexes
	LexicalErr   error
	SemanticErr  error
}

// OK reports whether both indexes were updated
func (r Result) OK() bool {
	return r.LexicalErr == nil && r.SemanticErr == nil
}

// Err joins the per-index errors; nil when both succeeded
func (r Result) Err() error {
	var errs []error
	if r.LexicalErr != nil {
		errs = append(errs, fmt.Errorf("lexical: %w", r.LexicalErr))
	}
	if r.SemanticErr != nil {
		errs = append(errs, fmt.Errorf("semantic: %w", r.SemanticErr))
	}
	return errors.Join(errs...)
}

// New creates a new Indexer instance
func New(store Store, lex lexical.Index, sem SemanticIndex, cfg Config, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU()/2, 1)
	}
	return &Indexer{
		store:    store,
		lexical:  lex,
		semantic: sem,
		logger:   logger.Named("indexer"),
		workers:  workers,
	}
}

// ReindexOne rebuilds both index entries for id from the profile store. A
// missing profile removes the id from both indexes. Both indexes are always
// attempted, whatever the other one does.
func (idx *Indexer) ReindexOne(ctx context.Context, id int64) Result {
	res := idx.reindex(ctx, id, false)
	idx.logResult(res)
	return res
}

func (idx *Indexer) reindex(ctx context.Context, id int64, staged bool) Result {
	res := Result{FreelancerID: id}
	if id <= 0 {
		res.LexicalErr = types.ErrInvalidFreelancerID
		res.SemanticErr = types.ErrInvalidFreelancerID
		return res
	}

	profile, err := idx.store.GetProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		res.Deleted = true
		res.LexicalErr = idx.lexical.RemoveDocument(ctx, id)
		res.SemanticErr = idx.semantic.Remove(ctx, id)
		idx.record(res)
		return res
	}
	if err != nil {
		err = fmt.Errorf("load profile %d: %w", id, err)
		res.LexicalErr, res.SemanticErr = err, err
		idx.record(res)
		return res
	}

	items, err := idx.store.GetPortfolioItems(ctx, id)
	if err != nil {
		err = fmt.Errorf("load portfolio %d: %w", id, err)
		res.LexicalErr, res.SemanticErr = err, err
		idx.record(res)
		return res
	}

	doc := types.BuildLexicalDocument(profile, items)
	res.LexicalErr = idx.lexical.IndexDocument(ctx, doc)
	if staged {
		res.SemanticErr = idx.semantic.Stage(ctx, id, doc.EmbeddingText())
	} else {
		res.SemanticErr = idx.semantic.Upsert(ctx, id, doc.EmbeddingText())
	}
	idx.record(res)
	return res
}

func (idx *Indexer) record(res Result) {
	outcome := func(err error) string {
		switch {
		case err != nil:
			return metrics.OutcomeError
		case res.Deleted:
			return metrics.OutcomeDeleted
		default:
			return metrics.OutcomeIndexed
		}
	}
	metrics.ReindexTotal.WithLabelValues(metrics.IndexLexical, outcome(res.LexicalErr)).Inc()
	metrics.ReindexTotal.WithLabelValues(metrics.IndexSemantic, outcome(res.SemanticErr)).Inc()
}

func (idx *Indexer) logResult(res Result) {
	fields := []zap.Field{zap.Int64("freelancer_id", res.FreelancerID), zap.Bool("deleted", res.Deleted)}
	if res.OK() {
		idx.logger.Debug("reindexed freelancer", fields...)
		return
	}
	if res.LexicalErr != nil {
		fields = append(fields, zap.NamedError("lexical_error", res.LexicalErr))
	}
	if res.SemanticErr != nil {
		fields = append(fields, zap.NamedError("semantic_error", res.SemanticErr))
	}
	idx.logger.Warn("reindex incomplete", fields...)
}

// BootstrapIfEmpty populates both indexes from every stored profile when
// either index is empty or a previous bootstrap never completed. It is a
// no-op once both are populated.
func (idx *Indexer) BootstrapIfEmpty(ctx context.Context) (*types.BootstrapReport, error) {
	return idx.Bootstrap(ctx, false)
}

// Bootstrap reindexes every stored profile. Without force it first checks
// whether the indexes already hold data. Per-freelancer failures are counted
// in the report and never stop the run.
func (idx *Indexer) Bootstrap(ctx context.Context, force bool) (*types.BootstrapReport, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrBootstrapInProgress
	}
	defer idx.lock.Release()

	report := &types.BootstrapReport{RunID: uuid.NewString()}
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	if !force {
		reason, err := idx.populatedReason(ctx)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			report.Skipped = true
			report.Reason = reason
			idx.logger.Debug("bootstrap skipped", zap.String("reason", reason))
			return report, nil
		}
	}

	ids, err := idx.store.ListFreelancerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list freelancers: %w", err)
	}
	report.Total = len(ids)
	idx.logger.Info("bootstrap started",
		zap.String("run_id", report.RunID),
		zap.Int("freelancers", len(ids)),
		zap.Int("workers", idx.workers))

	if err := idx.runBootstrap(ctx, ids, report); err != nil {
		return report, err
	}

	if err := idx.semantic.Flush(); err != nil {
		// nothing staged reached disk, so every semantic write is lost
		report.SemanticFailures = report.Total
		report.Errors = appendCapped(report.Errors, fmt.Sprintf("flush semantic index: %v", err))
		idx.logger.Error("semantic flush failed", zap.Error(err))
		return report, nil
	}

	if report.Failed == 0 {
		if err := idx.store.SetState(ctx, storage.StateBootstrapCompleted, report.RunID); err != nil {
			return report, fmt.Errorf("write bootstrap marker: %w", err)
		}
	}

	idx.logger.Info("bootstrap finished",
		zap.String("run_id", report.RunID),
		zap.Int("indexed", report.Indexed),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// populatedReason returns why a bootstrap is unnecessary, or "" when one should run
func (idx *Indexer) populatedReason(ctx context.Context) (string, error) {
	profiles, err := idx.store.CountProfiles(ctx)
	if err != nil {
		return "", fmt.Errorf("count profiles: %w", err)
	}
	if profiles == 0 {
		return "profile store is empty", nil
	}

	docs, err := idx.lexical.CountDocuments(ctx)
	if err != nil {
		return "", fmt.Errorf("count lexical documents: %w", err)
	}
	vectors, err := idx.semantic.Len()
	if err != nil {
		// an unloadable semantic index still gets a lexical bootstrap
		idx.logger.Warn("semantic index unavailable during bootstrap check", zap.Error(err))
		vectors = 0
	}
	if docs == 0 || vectors == 0 {
		return "", nil
	}

	_, err = idx.store.GetState(ctx, storage.StateBootstrapCompleted)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("read bootstrap marker: %w", err)
	}
	return "indexes already populated", nil
}

func (idx *Indexer) runBootstrap(ctx context.Context, ids []int64, report *types.BootstrapReport) error {
	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg                 sync.WaitGroup
		mu                 sync.Mutex
		indexed, deleted   atomic.Int32
		lexFails, semFails atomic.Int32
		failed             atomic.Int32
	)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			res := idx.reindex(ctx, id, true)
			switch {
			case res.OK() && res.Deleted:
				deleted.Add(1)
			case res.OK():
				indexed.Add(1)
			default:
				failed.Add(1)
				if res.LexicalErr != nil {
					lexFails.Add(1)
				}
				if res.SemanticErr != nil {
					semFails.Add(1)
				}
				mu.Lock()
				report.Errors = appendCapped(report.Errors, fmt.Sprintf("freelancer %d: %v", id, res.Err()))
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("submit freelancer %d: %w", id, submitErr)
		}
	}
	wg.Wait()

	report.Indexed = int(indexed.Load())
	report.Deleted = int(deleted.Load())
	report.Failed = int(failed.Load())
	report.LexicalFailures = int(lexFails.Load())
	report.SemanticFailures = int(semFails.Load())
	return ctx.Err()
}

func appendCapped(errs []string, msg string) []string {
	if len(errs) >= maxReportedErrors {
		return errs
	}
	return append(errs, msg)
}

// Bootstrapping reports whether a bootstrap is running
func (idx *Indexer) Bootstrapping() bool {
	return idx.lock.Held()
}
