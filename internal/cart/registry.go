package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	applog "brewbar/internal/log"
)

var ErrNoSnapshot = errors.New("cart: no snapshot")

// SnapshotStore persists cart lines outside the process, keyed by session.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) ([]Line, error)
	Save(ctx context.Context, sessionID string, s Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

type entry struct {
	engine   *Engine
	synced   uint64 // engine version last loaded from or written to the store
	lastUsed time.Time
}

// Registry hands out one Engine per session. A nil store keeps carts in
// process memory only. With a store, an engine without unsaved changes is
// refreshed from the store on every Get so carts changed by another
// instance are seen here.
type Registry struct {
	// IdleTTL evicts engines not used for this long. Zero keeps them.
	IdleTTL time.Duration
	Now     func() time.Time

	mu        sync.Mutex
	carts     map[string]*entry
	store     SnapshotStore
	lastSweep time.Time
}

func NewRegistry(store SnapshotStore) *Registry {
	return &Registry{carts: map[string]*entry{}, store: store, Now: time.Now}
}

// Get returns the session's engine, creating it if needed.
func (r *Registry) Get(ctx context.Context, sessionID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdle(now)
	if en, ok := r.carts[sessionID]; ok {
		r.refresh(ctx, sessionID, en)
		en.lastUsed = now
		return en.engine
	}
	en := &entry{engine: NewWithID(sessionID), lastUsed: now}
	r.load(ctx, sessionID, en)
	r.carts[sessionID] = en
	return en.engine
}

// Peek returns the session's cart without registering an engine for it.
func (r *Registry) Peek(ctx context.Context, sessionID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if en, ok := r.carts[sessionID]; ok {
		r.refresh(ctx, sessionID, en)
		return en.engine.Snapshot()
	}
	en := &entry{engine: NewWithID(sessionID)}
	r.load(ctx, sessionID, en)
	return en.engine.Snapshot()
}

// Persist writes the session's current cart to the store. Empty carts are
// deleted rather than stored.
func (r *Registry) Persist(ctx context.Context, sessionID string) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	en, ok := r.carts[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	snap := en.engine.Snapshot()
	var err error
	if snap.Empty() {
		err = r.store.Delete(ctx, sessionID)
	} else {
		err = r.store.Save(ctx, sessionID, snap)
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	if cur, ok := r.carts[sessionID]; ok && cur == en && snap.Version > en.synced {
		en.synced = snap.Version
	}
	r.mu.Unlock()
	return nil
}

// Forget drops the in-process engine; the persisted snapshot is kept.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.carts, sessionID)
	r.mu.Unlock()
}

// Len reports how many engines are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

// load fills en from the store. A missing snapshot empties the engine; a
// store error leaves it as it is. Changes made to the engine while the
// store was being read win over the stored lines.
func (r *Registry) load(ctx context.Context, sessionID string, en *entry) {
	if r.store == nil {
		return
	}
	ver := en.engine.Version()
	lines, err := r.store.Load(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSnapshot):
		if ver == 0 {
			return
		}
		lines = nil
	default:
		applog.Warn(nil, "cart.restore.fail", err, map[string]any{"sid": sessionID})
		return
	}
	if got, ok := en.engine.restoreAt(lines, ver); ok {
		en.synced = got
	}
}

// refresh reloads an engine whose last change already reached the store.
// Engines with unsaved changes are left alone.
func (r *Registry) refresh(ctx context.Context, sessionID string, en *entry) {
	if r.store == nil || en.engine.Version() != en.synced {
		return
	}
	r.load(ctx, sessionID, en)
}

func (r *Registry) evictIdle(now time.Time) {
	if r.IdleTTL <= 0 || now.Sub(r.lastSweep) < min(r.IdleTTL, time.Minute) {
		return
	}
	r.lastSweep = now
	for sid, en := range r.carts {
		if now.Sub(en.lastUsed) >= r.IdleTTL {
			delete(r.carts, sid)
		}
	}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
