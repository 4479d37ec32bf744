package store

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Store is the external key/value store holding one namespace of string
// values per logical device. The meter itself keeps no persistent state of
// its own; everything that must survive a restart goes through here.
//
// Set must write only when the value actually changed so that polling far
// more often than the underlying counters change does not cause storage
// churn or false "updated" signals downstream.
type Store interface {
	// Get returns the stored value for key, or "" when absent.
	Get(ctx context.Context, device, key string) (string, error)

	// GetNumber returns the stored value coerced to a number, defaulting to 0.
	GetNumber(ctx context.Context, device, key string) (float64, error)

	// Set writes value under key, only if it differs from the stored value.
	Set(ctx context.Context, device, key, value string) error

	// SetNumber formats value and writes it via Set.
	SetNumber(ctx context.Context, device, key string, value float64) error

	// Default returns the stored value for key, creating it with fallback
	// when absent.
	Default(ctx context.Context, device, key, fallback string) (string, error)

	// Lifecycle
	Close() error
}

// Configured sets up the store provider based on flags.
func Configured() Store {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, memory)")

	var p struct{ Store }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Store = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Store = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
