package sink

import (
	"fmt"

	"hb-go/internal/config"
	"hb-go/internal/hb"
)

// Store is a sink whose written files can be read back.
type Store interface {
	hb.Sink
	ReadFile(directory, name string) ([]byte, error)
}

// NewSinkFromConfig creates a sink implementation based on the destination config type.
func NewSinkFromConfig(cfg config.DestinationConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemorySink(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem destination requires root to be set")
		}
		return NewFileSystemSink(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown destination type: %s", cfg.Type)
	}
}
