package ctxstore

import (
	"context"
	"sort"
	"sync"

	"github.com/edgeflow/edgelink/internal/model"
)

// MemoryStore is a process-local Store backend, grounded on original_source's
// runtime/context/memory.rs. Unlike the upstream implementation, Clean is fully
// implemented here rather than left as a documented gap: spec §9 calls out context
// garbage collection (sweeping scopes belonging to nodes no longer present in a
// redeployed flow) as something every backend must do, not an optional extra.
type MemoryStore struct {
	name string
	mu   sync.RWMutex
	data map[string]map[string]model.Variant
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, data: make(map[string]map[string]model.Variant)}
}

func (m *MemoryStore) Name() string { return m.name }

func (m *MemoryStore) Open(ctx context.Context) error  { return nil }
func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func (m *MemoryStore) GetOne(ctx context.Context, scope, key string) (model.Variant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopeMap, ok := m.data[scope]
	if !ok {
		return model.Null(), nil
	}
	v, ok := scopeMap[key]
	if !ok {
		return model.Null(), nil
	}
	return v, nil
}

func (m *MemoryStore) GetMany(ctx context.Context, scope string, keys []string) ([]model.Variant, error) {
	out := make([]model.Variant, len(keys))
	for i, k := range keys {
		v, err := m.GetOne(ctx, scope, k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MemoryStore) GetKeys(ctx context.Context, scope string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopeMap, ok := m.data[scope]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(scopeMap))
	for k := range scopeMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SetOne(ctx context.Context, scope, key string, value model.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopeMap, ok := m.data[scope]
	if !ok {
		scopeMap = make(map[string]model.Variant)
		m.data[scope] = scopeMap
	}
	scopeMap[key] = value
	return nil
}

func (m *MemoryStore) SetMany(ctx context.Context, scope string, pairs map[string]model.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopeMap, ok := m.data[scope]
	if !ok {
		scopeMap = make(map[string]model.Variant)
		m.data[scope] = scopeMap
	}
	for k, v := range pairs {
		scopeMap[k] = v
	}
	return nil
}

func (m *MemoryStore) RemoveOne(ctx context.Context, scope, key string) (model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopeMap, ok := m.data[scope]
	if !ok {
		return model.Null(), nil
	}
	v, existed := scopeMap[key]
	delete(scopeMap, key)
	if !existed {
		return model.Null(), nil
	}
	return v, nil
}

func (m *MemoryStore) Delete(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scope)
	return nil
}

// Clean drops every scope except GlobalScopeName and those named in activeNodes,
// matching the set of element ids (nodes, flows, and groups) still present after a
// redeploy or engine reload.
func (m *MemoryStore) Clean(ctx context.Context, activeNodes []model.ElementId) error {
	active := make(map[string]bool, len(activeNodes)+1)
	active[GlobalScopeName] = true
	for _, id := range activeNodes {
		active[id.String()] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for scope := range m.data {
		if active[scope] {
			continue
		}
		delete(m.data, scope)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
