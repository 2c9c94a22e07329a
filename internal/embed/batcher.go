package embed

import (
	"context"

	"github.com/semidx/semidx/internal/errors"
)

// Batcher splits embedding work into fixed-size batches and retries
// transient failures with exponential backoff. Output order matches
// input order.
type Batcher struct {
	embedder  Embedder
	batchSize int
	retry     errors.RetryConfig
}

// NewBatcher creates a batcher over the given embedder. A batchSize
// outside [MinBatchSize, MaxBatchSize] is clamped.
func NewBatcher(embedder Embedder, batchSize int) *Batcher {
	if batchSize < MinBatchSize {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Batcher{
		embedder:  embedder,
		batchSize: batchSize,
		retry:     errors.DefaultRetryConfig(),
	}
}

// SetRetryConfig overrides the retry policy.
func (b *Batcher) SetRetryConfig(cfg errors.RetryConfig) {
	b.retry = cfg
}

// BatchSize returns the configured batch size.
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// EmbedAll embeds all texts in fixed-size batches, preserving input
// order. A batch that still fails after retries leaves nil vectors in
// its slots and the remaining batches proceed, so one bad batch only
// affects the texts it held; the first batch error is returned
// alongside the partial results. Cancellation aborts the call with no
// results.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var firstErr error
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := b.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		copy(vectors[start:end], batch)
	}
	return vectors, firstErr
}

// EmbedBatch embeds a single batch with retry and backoff.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return errors.RetryWithResult(ctx, b.retry, func() ([][]float32, error) {
		return b.embedder.EmbedBatch(ctx, texts)
	})
}
