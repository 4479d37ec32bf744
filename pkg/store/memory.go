package store

import (
	"context"
	"sync"

	"github.com/solarmeter/solarmeter/pkg/convert"
)

// Memory is an in-process Store used by tests and local runs without a
// Firestore project. It honors the same write-only-if-changed contract.
type Memory struct {
	mu      sync.Mutex
	devices map[string]map[string]string
	writes  map[string]int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		devices: make(map[string]map[string]string),
		writes:  make(map[string]int),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) fields(device string) map[string]string {
	fields, ok := m.devices[device]
	if !ok {
		fields = make(map[string]string)
		m.devices[device] = fields
	}
	return fields
}

// Get returns the stored value for key, or "" when absent.
func (m *Memory) Get(_ context.Context, device, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields(device)[key], nil
}

// GetNumber returns the stored value coerced to a number, defaulting to 0.
func (m *Memory) GetNumber(ctx context.Context, device, key string) (float64, error) {
	v, err := m.Get(ctx, device, key)
	if err != nil {
		return 0, err
	}
	return convert.ToNumber(v), nil
}

// Set writes value under key, only if it differs from the stored value.
func (m *Memory) Set(_ context.Context, device, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := m.fields(device)
	if stored, ok := fields[key]; ok && stored == value {
		return nil
	}
	fields[key] = value
	m.writes[device+"."+key]++
	return nil
}

// SetNumber formats value and writes it via Set.
func (m *Memory) SetNumber(ctx context.Context, device, key string, value float64) error {
	return m.Set(ctx, device, key, convert.FormatNumber(value))
}

// Default returns the stored value for key, creating it with fallback when
// absent.
func (m *Memory) Default(ctx context.Context, device, key, fallback string) (string, error) {
	m.mu.Lock()
	fields := m.fields(device)
	if v, ok := fields[key]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()
	if err := m.Set(ctx, device, key, fallback); err != nil {
		return "", err
	}
	return fallback, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// Writes reports how many times a key was actually written. Tests use it to
// verify the change-gated write behavior.
func (m *Memory) Writes(device, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[device+"."+key]
}

// Has reports whether a key exists for the device.
func (m *Memory) Has(device, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fields(device)[key]
	return ok
}
