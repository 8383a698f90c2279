package embedder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/metrics"
)

// Instrumented wraps an Embedder with Prometheus metrics and debug logging.
type Instrumented struct {
	Embedder
	logger *zap.Logger
}

// NewInstrumented decorates e
func NewInstrumented(e Embedder, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{
		Embedder: e,
		logger:   logger.With(zap.String("provider", e.Provider()), zap.String("model", e.Model())),
	}
}

func (i *Instrumented) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	start := time.Now()
	emb, err := i.Embedder.GenerateEmbedding(ctx, req)
	i.observe(start, 1, err)
	return emb, err
}

func (i *Instrumented) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	start := time.Now()
	resp, err := i.Embedder.GenerateBatch(ctx, req)
	i.observe(start, len(req.Texts), err)
	return resp, err
}

// HealthCheck delegates when the wrapped embedder supports it
func (i *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := i.Embedder.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (i *Instrumented) observe(start time.Time, texts int, err error) {
	provider, model := i.Provider(), i.Model()
	elapsed := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "error").Inc()
		i.logger.Warn("embedding failed", zap.Int("texts", texts), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	i.logger.Debug("embedding generated", zap.Int("texts", texts), zap.Duration("elapsed", elapsed))
}
