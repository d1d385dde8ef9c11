package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/f-sync/socialpulse/internal/analysis"
)

const (
	errMessageEncodeAnalysis = "failed to encode analysis"
	errMessageDecodeAnalysis = "failed to decode analysis"
)

type storedSnapshot struct {
	id        string
	label     string
	timestamp time.Time
	payload   []byte
}

// MemoryStore is a fixed-capacity ring buffer of snapshots. Payloads are kept encoded
// so callers can never mutate a stored snapshot.
type MemoryStore struct {
	mutex   sync.RWMutex
	slots   []storedSnapshot
	next    int
	count   int
	options storeOptions
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(options ...Option) *MemoryStore {
	resolved := resolveOptions(options)
	return &MemoryStore{
		slots:   make([]storedSnapshot, resolved.capacity),
		options: resolved,
	}
}

// Save stores the analysis, overwriting the oldest slot when the buffer is full.
func (store *MemoryStore) Save(ctx context.Context, result analysis.Analysis, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := encodeAnalysis(result)
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	identifier := store.options.newID()
	store.slots[store.next] = storedSnapshot{
		id:        identifier,
		label:     label,
		timestamp: store.options.now().UTC(),
		payload:   payload,
	}
	store.next = (store.next + 1) % len(store.slots)
	if store.count < len(store.slots) {
		store.count++
	}
	return identifier, nil
}

// List returns the retained snapshots, most recent first.
func (store *MemoryStore) List(ctx context.Context) ([]analysis.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	snapshots := make([]analysis.Snapshot, 0, store.count)
	for offset := 1; offset <= store.count; offset++ {
		snapshot, err := decodeSnapshot(store.slots[store.slotIndex(offset)])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// Get returns the snapshot with the identifier or ErrSnapshotNotFound.
func (store *MemoryStore) Get(ctx context.Context, identifier string) (analysis.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Snapshot{}, err
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	for offset := 1; offset <= store.count; offset++ {
		stored := store.slots[store.slotIndex(offset)]
		if stored.id == identifier {
			return decodeSnapshot(stored)
		}
	}
	return analysis.Snapshot{}, ErrSnapshotNotFound
}

// Latest returns the most recent snapshot or ErrSnapshotNotFound when empty.
func (store *MemoryStore) Latest(ctx context.Context) (analysis.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Snapshot{}, err
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if store.count == 0 {
		return analysis.Snapshot{}, ErrSnapshotNotFound
	}
	return decodeSnapshot(store.slots[store.slotIndex(1)])
}

// Remove deletes the snapshot with the identifier, compacting the ring. Removing an
// unknown identifier returns ErrSnapshotNotFound.
func (store *MemoryStore) Remove(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	// oldest first
	retained := make([]storedSnapshot, 0, store.count)
	found := false
	for offset := store.count; offset >= 1; offset-- {
		stored := store.slots[store.slotIndex(offset)]
		if stored.id == identifier {
			found = true
			continue
		}
		retained = append(retained, stored)
	}
	if !found {
		return ErrSnapshotNotFound
	}
	store.reset()
	for _, stored := range retained {
		store.slots[store.next] = stored
		store.next++
		store.count++
	}
	store.next %= len(store.slots)
	return nil
}

// Clear discards every snapshot.
func (store *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.reset()
	return nil
}

// Close is a no-op for the in-memory store.
func (store *MemoryStore) Close() error {
	return nil
}

// slotIndex maps an age (1 = newest) onto a slot.
func (store *MemoryStore) slotIndex(age int) int {
	capacity := len(store.slots)
	return ((store.next-age)%capacity + capacity) % capacity
}

func (store *MemoryStore) reset() {
	store.slots = make([]storedSnapshot, len(store.slots))
	store.next = 0
	store.count = 0
}

func encodeAnalysis(result analysis.Analysis) ([]byte, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageEncodeAnalysis, err)
	}
	return payload, nil
}

func decodeAnalysis(payload []byte) (analysis.Analysis, error) {
	var result analysis.Analysis
	if err := json.Unmarshal(payload, &result); err != nil {
		return analysis.Analysis{}, fmt.Errorf("%s: %w", errMessageDecodeAnalysis, err)
	}
	return result, nil
}

func decodeSnapshot(stored storedSnapshot) (analysis.Snapshot, error) {
	result, err := decodeAnalysis(stored.payload)
	if err != nil {
		return analysis.Snapshot{}, err
	}
	return analysis.Snapshot{
		ID:        stored.id,
		Analysis:  result,
		Timestamp: stored.timestamp,
		Label:     stored.label,
	}, nil
}
