package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/solarmeter/solarmeter/pkg/common"
	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements the Store interface using Google Cloud
// Firestore: one document per device under the "meters" collection, one
// field per key.
//
// The poller is the only writer, so each device document is cached in memory
// after the first read and writes go through the cache to satisfy the
// write-only-if-changed contract without a read round-trip per Set.
type FirestoreStore struct {
	client    *firestore.Client
	projectID string
	database  string

	mu    sync.Mutex
	cache map[string]map[string]string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreStore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreStore{
		cache: make(map[string]map[string]string),
	}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreStore) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreStore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database,
		option.WithUserAgent("SolarMeter/"+common.Version()))
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// device returns the cached field map for a device, loading the document on
// first use. Must be called with f.mu held.
func (f *FirestoreStore) device(ctx context.Context, device string) (map[string]string, error) {
	if device == "" {
		return nil, fmt.Errorf("device cannot be empty")
	}
	if fields, ok := f.cache[device]; ok {
		return fields, nil
	}

	fields := make(map[string]string)
	doc, err := f.client.Collection("meters").Doc(device).Get(ctx)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			return nil, fmt.Errorf("failed to fetch device doc %s: %w", device, err)
		}
		// absent documents are created lazily on first Set
	} else {
		for k, v := range doc.Data() {
			s, ok := v.(string)
			if !ok {
				log.Ctx(ctx).WarnContext(ctx, "device field not a string, ignoring", slog.String("device", device), slog.String("key", k))
				continue
			}
			fields[k] = s
		}
	}
	f.cache[device] = fields
	return fields, nil
}

// Get returns the stored value for key, or "" when absent.
func (f *FirestoreStore) Get(ctx context.Context, device, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, err := f.device(ctx, device)
	if err != nil {
		return "", err
	}
	return fields[key], nil
}

// GetNumber returns the stored value coerced to a number, defaulting to 0.
func (f *FirestoreStore) GetNumber(ctx context.Context, device, key string) (float64, error) {
	v, err := f.Get(ctx, device, key)
	if err != nil {
		return 0, err
	}
	return convert.ToNumber(v), nil
}

// Set writes value under key, only if it differs from the stored value.
func (f *FirestoreStore) Set(ctx context.Context, device, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, err := f.device(ctx, device)
	if err != nil {
		return err
	}
	if stored, ok := fields[key]; ok && stored == value {
		return nil
	}

	_, err = f.client.Collection("meters").Doc(device).Set(ctx, map[string]interface{}{
		key: value,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", device, key, err)
	}
	fields[key] = value
	return nil
}

// SetNumber formats value and writes it via Set.
func (f *FirestoreStore) SetNumber(ctx context.Context, device, key string, value float64) error {
	return f.Set(ctx, device, key, convert.FormatNumber(value))
}

// Default returns the stored value for key, creating it with fallback when
// absent.
func (f *FirestoreStore) Default(ctx context.Context, device, key, fallback string) (string, error) {
	f.mu.Lock()
	fields, err := f.device(ctx, device)
	if err != nil {
		f.mu.Unlock()
		return "", err
	}
	if v, ok := fields[key]; ok {
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	if err := f.Set(ctx, device, key, fallback); err != nil {
		return "", err
	}
	return fallback, nil
}
