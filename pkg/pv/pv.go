// Package pv contains one adapter per supported solar-monitoring API.
// Each adapter translates a raw vendor response into the canonical reading,
// deriving any totals the vendor does not supply via the rolling aggregator.
package pv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/solarmeter/solarmeter/pkg/common"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// requestTimeout bounds every vendor HTTP call; a stuck request simply
// consumes its timeout, there are no retries within a cycle.
const requestTimeout = 15 * time.Second

// System is the capability set shared by every vendor adapter.
type System interface {
	// Init validates the configured credentials/addresses, loads whichever
	// rolling series classes this vendor's data availability requires, and
	// records whether continuous (day-and-night) polling is needed.
	Init(ctx context.Context) error

	// Refresh performs one fetch against the vendor endpoint and returns the
	// canonical reading. All failure paths return a *Error; nothing
	// escapes the boundary any other way.
	Refresh(ctx context.Context) (types.Reading, error)

	// ContinuousPoll reports whether this vendor streams grid/battery data
	// even at zero production, which disables night-suspend scheduling.
	ContinuousPoll() bool
}

// Map resolves vendor ids to initialized adapters.
type Map struct {
	mu      sync.Mutex
	st      store.Store
	systems map[string]System
}

// Configured sets up the vendor registry.
func Configured(st store.Store) *Map {
	return &Map{
		st:      st,
		systems: make(map[string]System),
	}
}

// System returns the initialized adapter for the given vendor id and meter
// device. Adapters are cached only after a successful Init so a
// configuration fix is picked up on the next resolution.
func (m *Map) System(ctx context.Context, device, id string) (System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cacheKey := device + "/" + id
	if sys, ok := m.systems[cacheKey]; ok {
		return sys, nil
	}

	var sys System
	switch id {
	case types.VendorEnphaseLocal:
		sys = newEnphaseLocal(m.st, device)
	case types.VendorEnphaseRemote:
		sys = newEnphaseRemote(m.st, device)
	case types.VendorFronius:
		sys = newFronius(m.st, device)
	case types.VendorSolarEdge:
		sys = newSolarEdge(m.st, device)
	case types.VendorGinlong:
		sys = newGinlong(m.st, device)
	case types.VendorPVOutput:
		sys = newPVOutput(m.st, device)
	case types.VendorSolax:
		sys = newSolax(m.st, device)
	case types.VendorSolarman:
		sys = newSolarman(m.st, device)
	default:
		return nil, configErr("unknown vendor: %s", id)
	}

	if err := sys.Init(ctx); err != nil {
		return nil, err
	}
	m.systems[cacheKey] = sys
	return sys, nil
}

// SetSystem sets the adapter for a vendor id. This is primarily used for testing.
func (m *Map) SetSystem(device, id string, sys System) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems[device+"/"+id] = sys
}

func newClient() *http.Client {
	return common.HTTPClient(requestTimeout)
}

// fetchBody performs req and returns the response body. Connection failures,
// timeouts, and non-200 statuses all come back as transport errors.
func fetchBody(client *http.Client, req *http.Request) ([]byte, *Error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportErr(0, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportErr(resp.StatusCode, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(resp.StatusCode, "failed to read body: %v", err)
	}
	return body, nil
}

// fetchJSON performs req and decodes the JSON response body into dest.
func fetchJSON(client *http.Client, req *http.Request, dest any) *Error {
	body, ferr := fetchBody(client, req)
	if ferr != nil {
		return ferr
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return transportErr(http.StatusOK, "failed to decode response: %v", err)
	}
	return nil
}

// getJSON issues a GET for url and decodes the response into dest.
func getJSON(ctx context.Context, client *http.Client, url string, dest any) *Error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return transportErr(0, "failed to build request: %v", err)
	}
	return fetchJSON(client, req, dest)
}

// requireConfig fetches a required config key from the store, returning a
// config error naming the key when empty.
func requireConfig(ctx context.Context, st store.Store, device, key string) (string, error) {
	v, err := st.Get(ctx, device, key)
	if err != nil {
		return "", fmt.Errorf("failed to read config %s: %w", key, err)
	}
	if v == "" {
		return "", configErr("missing required configuration: %s", key)
	}
	return v, nil
}
