// Package ctxstore implements the scoped, pluggable context store from spec §3/§4.8
// (component F), grounded on original_source's runtime/context/{mod,memory}.rs.
package ctxstore

import (
	"context"
	"strings"
	"sync"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
)

const (
	GlobalScopeName       = "global"
	DefaultStoreName      = "default"
	DefaultStoreNameAlias = "_"
)

// Store is the pluggable backend a context provider implements. One Store instance
// serves every scope (node/flow/global) addressed as a string key.
type Store interface {
	Name() string
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	GetOne(ctx context.Context, scope, key string) (model.Variant, error)
	GetMany(ctx context.Context, scope string, keys []string) ([]model.Variant, error)
	GetKeys(ctx context.Context, scope string) ([]string, error)

	SetOne(ctx context.Context, scope, key string, value model.Variant) error
	SetMany(ctx context.Context, scope string, pairs map[string]model.Variant) error

	RemoveOne(ctx context.Context, scope, key string) (model.Variant, error)

	Delete(ctx context.Context, scope string) error
	// Clean retains only scopes whose id is present in activeNodes (or the reserved
	// global scope, which is never swept). See spec §9's open requirement.
	Clean(ctx context.Context, activeNodes []model.ElementId) error
}

// StoreProperty is the result of parsing a "#:(store)::key.path" token.
type StoreProperty struct {
	Store string // empty means "use the default store"
	Key   string
}

// ParseStoreKey parses a context property string as generated by a typed input,
// extracting an optional explicit store name. `#:(file)::foo.bar` yields
// {Store: "file", Key: "foo.bar"}; a bare "foo.bar" yields {Store: "", Key: "foo.bar"}.
func ParseStoreKey(key string) (StoreProperty, error) {
	if !strings.HasPrefix(key, "#:(") {
		return StoreProperty{Key: key}, nil
	}
	rest := key[3:]
	idx := strings.Index(rest, ")")
	if idx < 0 {
		return StoreProperty{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot parse the key: %q", key)
	}
	storeName := rest[:idx]
	rest = rest[idx+1:]
	if !strings.HasPrefix(rest, "::") {
		return StoreProperty{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot parse the key: %q", key)
	}
	return StoreProperty{Store: storeName, Key: rest[2:]}, nil
}

// Context is a context instance bound to a flow element (node/flow/global scope).
type Context struct {
	manager *Manager
	scope   string
}

// GetOne resolves prop against the bound scope, using the named store if given, else
// the manager's default store.
func (c *Context) GetOne(ctx context.Context, prop StoreProperty) (model.Variant, error) {
	store, err := c.resolveStore(prop.Store)
	if err != nil {
		return model.Variant{}, err
	}
	return store.GetOne(ctx, c.scope, prop.Key)
}

// SetOne sets prop to value, or removes it if value is nil.
func (c *Context) SetOne(ctx context.Context, prop StoreProperty, value *model.Variant) error {
	store, err := c.resolveStore(prop.Store)
	if err != nil {
		return err
	}
	if value == nil {
		_, err := store.RemoveOne(ctx, c.scope, prop.Key)
		return err
	}
	return store.SetOne(ctx, c.scope, prop.Key, *value)
}

func (c *Context) resolveStore(name string) (Store, error) {
	if name == "" {
		return c.manager.defaultStore, nil
	}
	s, ok := c.manager.GetStore(name)
	if !ok {
		return nil, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot find the context store: %q", name)
	}
	return s, nil
}

// Manager owns the registered Store backends and the per-scope Context handles.
type Manager struct {
	mu           sync.RWMutex
	defaultStore Store
	stores       map[string]Store
	contexts     map[string]*Context
}

// ManagerBuilder assembles a Manager, defaulting to a single in-memory store.
type ManagerBuilder struct {
	stores       map[string]Store
	defaultStore string
}

func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{stores: map[string]Store{"memory": NewMemoryStore("memory")}, defaultStore: "memory"}
}

// WithStore registers an additional backend (e.g. a Redis-backed store).
func (b *ManagerBuilder) WithStore(name string, s Store) *ManagerBuilder {
	b.stores[name] = s
	return b
}

// WithDefault selects which registered store name is the default. Build fails if the
// name isn't among the registered stores, per spec §4's configuration contract.
func (b *ManagerBuilder) WithDefault(name string) *ManagerBuilder {
	b.defaultStore = name
	return b
}

func (b *ManagerBuilder) Build() (*Manager, error) {
	def, ok := b.stores[b.defaultStore]
	if !ok {
		return nil, edgelinkerr.Newf(edgelinkerr.Configuration, "cannot find the default context storage %q, check your configuration", b.defaultStore)
	}
	return &Manager{defaultStore: def, stores: b.stores, contexts: make(map[string]*Context)}, nil
}

// NewContext registers and returns a Context bound to scope.
func (m *Manager) NewContext(scope string) *Context {
	c := &Context{manager: m, scope: scope}
	m.mu.Lock()
	m.contexts[scope] = c
	m.mu.Unlock()
	return c
}

// NewGlobalContext returns the reserved "global"-scoped Context.
func (m *Manager) NewGlobalContext() *Context { return m.NewContext(GlobalScopeName) }

func (m *Manager) GetDefault() Store { return m.defaultStore }

func (m *Manager) GetStore(name string) (Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[name]
	return s, ok
}

// Stores returns every registered backend, for open/close/clean sweeps at shutdown.
func (m *Manager) Stores() map[string]Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Store, len(m.stores))
	for k, v := range m.stores {
		out[k] = v
	}
	return out
}
