package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/semidx/semidx/internal/errors"
)

// Options selects and configures an embedding provider.
type Options struct {
	// Provider is "ollama" or "hash".
	Provider string

	// Model names the Ollama model. Ignored by the hash provider.
	Model string

	// Host is the Ollama endpoint. Ignored by the hash provider.
	Host string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// SkipHealthCheck skips the Ollama availability probe (for testing).
	SkipHealthCheck bool
}

// New creates the embedder named by opts.Provider.
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch opts.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(ctx, OllamaConfig{
			Host:            opts.Host,
			Model:           opts.Model,
			Dimensions:      opts.Dimensions,
			Timeout:         opts.Timeout,
			SkipHealthCheck: opts.SkipHealthCheck,
		})
	case "hash":
		return NewHashEmbedder(), nil
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider %q", opts.Provider), nil).
			WithSuggestion("use one of: ollama, hash")
	}
}
