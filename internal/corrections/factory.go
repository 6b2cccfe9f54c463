package corrections

import (
	"fmt"

	"go.uber.org/zap"
)

// NewStore creates a Store for the named backend.
//
//   - "chromem" (default): embedded persistent store, no external service
//   - "qdrant": external Qdrant server, for shared deployments
func NewStore(backend string, chromemCfg ChromemConfig, qdrantCfg QdrantConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch backend {
	case "chromem", "":
		return NewChromemStore(chromemCfg, embedder, logger)
	case "qdrant":
		return NewQdrantStore(qdrantCfg, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q (supported: chromem, qdrant)", ErrInvalidConfig, backend)
	}
}
