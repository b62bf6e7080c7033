// Package link provides the message-link store the DDML join operator uses to resume a prior message's sponge
// state: a map from a relative link identifier to the capacity-only snapshot of the sponge at that message's
// commit point, plus an opaque caller-defined Info value.
package link

import (
	"errors"
	"sync"

	"github.com/streamwrap/ddml/hazmat/duplex"
)

// RelSize is the length, in bytes, of a relative link identifier.
const RelSize = 32

// Rel identifies a message relative to its channel, independent of any particular store.
type Rel [RelSize]byte

// ErrNotFound is returned by Lookup when rel has no entry.
var ErrNotFound = errors.New("link: not found")

// ErrFull is returned by Update when the store has no room for another entry.
var ErrFull = errors.New("link: store is full")

// Entry is what a Store holds for one link: the sponge's capacity-only state at the moment the linked message
// reached its commit point, plus whatever the caller wants to remember about it.
type Entry struct {
	Inner [duplex.CapacitySize]byte
	Info  any
}

// Store is the read side the join operator consults and the write side a caller uses once a message it sent or
// received has been fully processed. Implementations must treat Lookup as side-effect-free: a size-computation pass
// never calls it, and a wrap or unwrap may call it for a message it then abandons.
type Store interface {
	// Lookup returns the entry for rel, or ErrNotFound if none exists.
	Lookup(rel Rel) (Entry, error)

	// Update records entry for rel, replacing any prior entry. It returns ErrFull if the store has a fixed capacity
	// and no room remains.
	Update(rel Rel, entry Entry) error

	// Erase removes any entry for rel. Erasing an absent rel is not an error.
	Erase(rel Rel) error
}

// MapStore is an in-memory Store backed by a mutex-guarded map. It is not persistent: a caller that needs
// durability is expected to layer that on top, per spec.md §6.1 ("the store is not required to be persistent").
type MapStore struct {
	mu       sync.Mutex
	entries  map[Rel]Entry
	capacity int // 0 means unbounded
}

// NewMapStore returns an unbounded in-memory Store.
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[Rel]Entry)}
}

// NewBoundedMapStore returns an in-memory Store that rejects Update once it holds capacity distinct links.
func NewBoundedMapStore(capacity int) *MapStore {
	return &MapStore{entries: make(map[Rel]Entry, capacity), capacity: capacity}
}

// Lookup implements Store.
func (s *MapStore) Lookup(rel Rel) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rel]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Update implements Store.
func (s *MapStore) Update(rel Rel, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[rel]; !exists && s.capacity > 0 && len(s.entries) >= s.capacity {
		return ErrFull
	}
	s.entries[rel] = entry
	return nil
}

// Erase implements Store.
func (s *MapStore) Erase(rel Rel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, rel)
	return nil
}
