package kvclientpool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/memdx"
)

// EndpointConfigFunc builds the per-endpoint pool config for an endpoint id,
// given its address. The agent supplies this so the manager stays ignorant
// of auth/TLS/bootstrap details.
type EndpointConfigFunc func(id string, addr corebase.EndpointAddress) Config

// Manager owns one ClientPool per known KV endpoint and applies add-only /
// prune diffs as the cluster topology changes underneath it.
type Manager struct {
	mu        sync.RWMutex
	pools     map[string]*ClientPool
	configFor EndpointConfigFunc
}

func NewManager(configFor EndpointConfigFunc) *Manager {
	return &Manager{
		pools:     make(map[string]*ClientPool),
		configFor: configFor,
	}
}

// UpdateEndpoints applies a diff against the manager's current endpoint set:
// entries in current not already pooled are added. When addOnly is false,
// pooled entries not present in current are also closed and removed.
// Existing pools for unchanged endpoints are left alone — their connections
// are not churned.
//
// Callers transitioning between overlapping configs call this twice: once
// with addOnly true against the union of the old and new endpoint sets, so
// every endpoint either config might route to is already pooled before
// anything depending on the new routing table starts using it, then again
// with addOnly false against just the new set, to prune what the old
// config needed but the new one doesn't. A single add+prune pass would let
// a request land on an endpoint whose pool was torn down moments earlier
// because the new config happened to apply before every dependent
// component had swapped over.
func (m *Manager) UpdateEndpoints(current map[string]corebase.EndpointAddress, addOnly bool) {
	m.mu.RLock()
	var toAdd []string
	for id := range current {
		if _, ok := m.pools[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	m.mu.RUnlock()

	// configFor may block (it can fetch credentials over the network for a
	// newly-seen endpoint), so build the new pools before taking the write
	// lock: GetPool/GetClient for every already-known endpoint keep working
	// against the read lock while this runs.
	built := make(map[string]*ClientPool, len(toAdd))
	for _, id := range toAdd {
		built[id] = NewClientPool(m.configFor(id, current[id]))
	}

	m.mu.Lock()
	var toClose []*ClientPool
	if !addOnly {
		for id, pool := range m.pools {
			if _, ok := current[id]; !ok {
				toClose = append(toClose, pool)
				delete(m.pools, id)
			}
		}
	}
	var redundant []*ClientPool
	for id, pool := range built {
		if _, ok := m.pools[id]; ok {
			// A concurrent UpdateEndpoints call already added this
			// endpoint while configFor was in flight for this one.
			redundant = append(redundant, pool)
			continue
		}
		m.pools[id] = pool
	}
	m.mu.Unlock()

	for _, pool := range toClose {
		pool.Close()
	}
	for _, pool := range redundant {
		pool.Close()
	}
}

// GetPool returns the pool for an endpoint id, or nil if unknown.
func (m *Manager) GetPool(id string) *ClientPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pools[id]
}

// GetClient is a convenience wrapper around GetPool + ClientPool.GetClient.
func (m *Manager) GetClient(id string) (*memdx.Client, error) {
	pool := m.GetPool(id)
	if pool == nil {
		return nil, corebase.New(corebase.KindNoServerAssigned, "no pool for endpoint "+id, nil)
	}
	return pool.GetClient()
}

// PingResult is one endpoint's outcome from PingAllClients.
type PingResult struct {
	EndpointID string
	Err        error
}

// PingAllClients round-trips a no-op request against one client of every
// pool concurrently, returning a result per endpoint rather than the first
// error seen: one unreachable node must not stop the caller from learning
// the state of every other node. A plain errgroup.Group is used instead of
// errgroup.WithContext specifically so no endpoint's ping cancels another's.
func (m *Manager) PingAllClients(ctx context.Context) []PingResult {
	m.mu.RLock()
	ids := make([]string, 0, len(m.pools))
	pools := make([]*ClientPool, 0, len(m.pools))
	for id, p := range m.pools {
		ids = append(ids, id)
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	results := make([]PingResult, len(pools))
	var g errgroup.Group
	for i := range pools {
		i := i
		g.Go(func() error {
			client, err := pools[i].GetClient()
			if err == nil {
				err = pingOnce(ctx, client)
			}
			results[i] = PingResult{EndpointID: ids[i], Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Reconfigure pushes a non-address settings change (timeouts, TLS config,
// throttle) to every pool the manager owns at the time of the call. Pools
// added afterward take their settings from configFor, so a caller that
// reconfigures also updates whatever it passes into NewManager's
// EndpointConfigFunc closure.
func (m *Manager) Reconfigure(s Settings) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pool := range m.pools {
		pool.Reconfigure(s)
	}
}

// UpdateAuth re-derives bootstrap credentials for every known endpoint via
// configFor and pushes them to each pool, taking effect on each slot's next
// reconnect. Already-open connections are left alone.
func (m *Manager) UpdateAuth() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, pool := range m.pools {
		cfg := m.configFor(id, pool.Address())
		pool.updateBootstrapOpts(cfg.BootstrapOpts)
	}
}

// Close tears down every pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*ClientPool)
	m.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	return nil
}
