package persist

import (
	"fmt"
	"io"

	"github.com/soyeahso/sipdash/internal/config"
	"github.com/soyeahso/sipdash/internal/logging"
)

// Backend is a KV that may hold resources.
type Backend interface {
	KV
	io.Closer
}

// Open selects the backend named by cfg.Store.
func Open(cfg config.StateConfig, paths config.Paths, log *logging.Logger) (Backend, error) {
	switch cfg.Store {
	case "", "sqlite":
		return OpenSQLite(paths.StatePath(cfg), log)
	case "memory":
		return memoryBackend{NewMemoryKV()}, nil
	default:
		return nil, fmt.Errorf("unknown state store %q", cfg.Store)
	}
}

type memoryBackend struct {
	*MemoryKV
}

func (memoryBackend) Close() error { return nil }
