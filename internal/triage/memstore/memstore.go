// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/linnemanlabs/cityfix/internal/geo"
	"github.com/linnemanlabs/cityfix/internal/triage"
)

// Store holds complaints in memory. Suitable for dev/testing.
// Intakes are serialized by a single lock regardless of location.
type Store struct {
	mu         sync.RWMutex
	complaints map[string]*triage.Complaint
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		complaints: make(map[string]*triage.Complaint),
	}
}

// Get retrieves a complaint by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Complaint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

// List returns copies of all complaints, newest first.
func (s *Store) List(_ context.Context) ([]*triage.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Complaint, 0, len(s.complaints))
	for _, c := range s.complaints {
		out = append(out, c.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// Update applies fn to a copy of the complaint and stores it if fn succeeds.
func (s *Store) Update(_ context.Context, id string, fn triage.UpdateFunc) (*triage.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", triage.ErrNotFound, id)
	}
	cp := c.Clone()
	if err := fn(cp); err != nil {
		return nil, err
	}
	s.complaints[id] = cp
	return cp.Clone(), nil
}

// Intake runs fn under the write lock. Writes made through the tx are applied only if fn returns nil.
func (s *Store) Intake(ctx context.Context, _ *geo.Point, _ float64, fn triage.IntakeFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &intakeTx{store: s, staged: make(map[string]*triage.Complaint)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, c := range tx.staged {
		s.complaints[id] = c
	}
	return nil
}

// intakeTx reads through to the store and stages writes. The store lock is held by Intake.
type intakeTx struct {
	store  *Store
	staged map[string]*triage.Complaint
}

func (tx *intakeTx) lookup(id string) (*triage.Complaint, bool) {
	if c, ok := tx.staged[id]; ok {
		return c, true
	}
	c, ok := tx.store.complaints[id]
	return c, ok
}

func (tx *intakeTx) Recent(_ context.Context, limit int) ([]*triage.Complaint, error) {
	out := make([]*triage.Complaint, 0, len(tx.store.complaints))
	for id := range tx.store.complaints {
		c, _ := tx.lookup(id)
		if c.Location == nil {
			continue
		}
		out = append(out, c.Clone())
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *intakeTx) Get(_ context.Context, id string) (*triage.Complaint, bool, error) {
	c, ok := tx.lookup(id)
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (tx *intakeTx) Insert(_ context.Context, c *triage.Complaint) error {
	if _, ok := tx.lookup(c.ID); ok {
		return fmt.Errorf("complaint %s already exists", c.ID)
	}
	tx.staged[c.ID] = c.Clone()
	return nil
}

func (tx *intakeTx) Save(_ context.Context, c *triage.Complaint) error {
	if _, ok := tx.lookup(c.ID); !ok {
		return fmt.Errorf("%w: %s", triage.ErrNotFound, c.ID)
	}
	tx.staged[c.ID] = c.Clone()
	return nil
}

func sortNewestFirst(cs []*triage.Complaint) {
	slices.SortFunc(cs, func(a, b *triage.Complaint) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
