package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"polarlab/api/internal/store"
)

// DefaultKey names the persisted workspace blob.
const DefaultKey = "pol-measures-storage"

const saveTimeout = 5 * time.Second

// Persister moves workspace snapshots between a store.Store and a BlobStore.
type Persister struct {
	blobs    BlobStore
	key      string
	defaults func() store.Defaults
	logger   *zap.Logger

	mu sync.Mutex
	// pending holds at most the latest snapshot not yet written.
	pending chan store.State
	done    chan struct{}
	closed  bool
}

// NewPersister builds a persister writing under key (DefaultKey when empty).
func NewPersister(blobs BlobStore, key string, logger *zap.Logger) *Persister {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		blobs:    blobs,
		key:      key,
		defaults: store.BuiltinDefaults,
		logger:   logger.Named("persist"),
	}
}

// Load reads the persisted snapshot and merges it over freshly generated
// defaults. A missing or undecodable blob yields the defaults alone; only
// backend failures are returned as errors.
func (p *Persister) Load(ctx context.Context) (store.State, error) {
	defaults := p.defaults()
	data, ok, err := p.blobs.Load(ctx, p.key)
	if err != nil {
		return store.State{}, fmt.Errorf("load workspace: %w", err)
	}
	if !ok {
		p.logger.Info("no persisted workspace, starting from defaults", zap.String("key", p.key))
		return store.Merge(nil, defaults), nil
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		p.logger.Warn("persisted workspace is corrupt, starting from defaults",
			zap.String("key", p.key), zap.Error(err))
		return store.Merge(nil, defaults), nil
	}
	p.logger.Info("workspace loaded",
		zap.String("key", p.key),
		zap.Int("distributions", len(snap.Distributions)),
		zap.Int("tables", len(snap.Tables)))
	return store.Merge(&snap, defaults), nil
}

// Save partializes state and writes it.
func (p *Persister) Save(ctx context.Context, state store.State) error {
	data, err := json.Marshal(store.Partialize(state, p.defaults()))
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	if err := p.blobs.Save(ctx, p.key, data); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

// Attach writes committed transitions of s from a single background
// goroutine. The listener only queues the snapshot, so commits never wait on
// the backend; snapshots queued while a write is in flight collapse into the
// latest one. Write failures are logged and the in-memory state stays
// authoritative. Close flushes and stops the writer.
func (p *Persister) Attach(s *store.Store) {
	p.mu.Lock()
	if p.pending == nil && !p.closed {
		p.pending = make(chan store.State, 1)
		p.done = make(chan struct{})
		go p.run()
	}
	p.mu.Unlock()

	s.Subscribe(p.enqueue)
}

func (p *Persister) enqueue(state store.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.pending == nil {
		return
	}
	select {
	case <-p.pending:
	default:
	}
	p.pending <- state
}

func (p *Persister) run() {
	defer close(p.done)
	for state := range p.pending {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := p.Save(ctx, state); err != nil {
			p.logger.Error("persist workspace", zap.Error(err))
		}
		cancel()
	}
}

// Close writes the last queued snapshot, if any, and stops the writer.
// Commits after Close are no longer persisted.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending, done := p.pending, p.done
	if pending != nil {
		close(pending)
	}
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Ping checks the backend.
func (p *Persister) Ping(ctx context.Context) error {
	return p.blobs.Ping(ctx)
}
