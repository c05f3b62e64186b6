// Package accounts persists the ordered list of identities known to a device
// and which one is active.
//
// Reads are served from an in-memory copy; every write updates the copy and
// then persists it through a [kv.Store]. Duplicate emails with different ids
// are distinct identities.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/kv"
)

var (
	// ErrUnknownAccount is returned by SetActive for an id not in the store.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrInvalidIdentity is returned by Upsert for an identity without an id.
	ErrInvalidIdentity = errors.New("identity id required")
	// ErrCorruptList is returned by Load when the persisted list cannot be decoded.
	ErrCorruptList = errors.New("persisted account list corrupt")
)

// Store is the device's account list.
type Store struct {
	kv kv.Store

	mu       sync.RWMutex
	list     []identity.Identity
	activeID string
}

// NewStore creates an empty [Store] backed by store. Call Load to read
// previously persisted state.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Load replaces the in-memory copy with persisted state. A missing list is an
// empty store. An active pointer that does not reference a listed identity is
// dropped.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, kv.KeyAccountsList)
	if err != nil {
		return err
	}
	var list []identity.Identity
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptList, err)
		}
	}
	list = dedupe(list)

	activeID, _, err := s.kv.Get(ctx, kv.KeyActiveAccountID)
	if err != nil {
		return err
	}
	if activeID != "" && indexOf(list, activeID) < 0 {
		activeID = ""
	}

	s.mu.Lock()
	s.list = list
	s.activeID = activeID
	s.mu.Unlock()
	return nil
}

// List returns a copy of every identity in insertion order.
func (s *Store) List() []identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]identity.Identity, len(s.list))
	copy(out, s.list)
	return out
}

// Get returns the identity with id.
func (s *Store) Get(id string) (identity.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.list, id); i >= 0 {
		return s.list[i], true
	}
	return identity.Identity{}, false
}

// ActiveID returns the active pointer, or "" when none.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the identity the active pointer references.
func (s *Store) Active() (identity.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return identity.Identity{}, false
	}
	if i := indexOf(s.list, s.activeID); i >= 0 {
		return s.list[i], true
	}
	return identity.Identity{}, false
}

// Upsert inserts id at the end of the list, or merges it over the stored
// entry with the same id.
func (s *Store) Upsert(ctx context.Context, id identity.Identity) error {
	if id.ID == "" {
		return ErrInvalidIdentity
	}

	s.mu.Lock()
	if i := indexOf(s.list, id.ID); i >= 0 {
		s.list[i] = identity.Merge(s.list[i], id)
	} else {
		s.list = append(s.list, id)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persistList(ctx, snapshot)
}

// Remove deletes the identity with id. The active pointer is cleared when it
// referenced that identity. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexOf(s.list, id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	clearActive := s.activeID == id
	if clearActive {
		s.activeID = ""
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persistList(ctx, snapshot); err != nil {
		return err
	}
	if clearActive {
		return s.kv.Remove(ctx, kv.KeyActiveAccountID)
	}
	return nil
}

// SetActive moves the active pointer. An empty id clears it.
func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	if id != "" && indexOf(s.list, id) < 0 {
		s.mu.Unlock()
		return ErrUnknownAccount
	}
	s.activeID = id
	s.mu.Unlock()

	if id == "" {
		return s.kv.Remove(ctx, kv.KeyActiveAccountID)
	}
	return s.kv.Set(ctx, kv.KeyActiveAccountID, id)
}

// Clear drops every identity and the active pointer.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.list = nil
	s.activeID = ""
	s.mu.Unlock()

	return s.kv.Remove(ctx, kv.KeyAccountsList, kv.KeyActiveAccountID)
}

func (s *Store) snapshotLocked() []identity.Identity {
	out := make([]identity.Identity, len(s.list))
	copy(out, s.list)
	return out
}

func (s *Store) persistList(ctx context.Context, list []identity.Identity) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, kv.KeyAccountsList, string(data))
}

func indexOf(list []identity.Identity, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupe keeps the first occurrence of every id, preserving order.
func dedupe(list []identity.Identity) []identity.Identity {
	seen := make(map[string]struct{}, len(list))
	out := list[:0]
	for _, id := range list {
		if id.ID == "" {
			continue
		}
		if _, ok := seen[id.ID]; ok {
			continue
		}
		seen[id.ID] = struct{}{}
		out = append(out, id)
	}
	return out
}
