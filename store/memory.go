// Package store provides in-memory implementations of the broker stores.
// Account mutations are serialized per account id, not globally, so trades
// on different accounts never contend.
package store

import (
	"context"
	"sync"

	"github.com/rustyeddy/fxbroker/broker"
)

type accountEntry struct {
	mu   sync.Mutex
	acct broker.Account
}

// MemoryAccounts is an AccountStore backed by a map with one lock per
// account. Apply runs its mutation on a copy and commits only on success.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]*accountEntry)}
}

// Put registers or replaces an account. Meant for setup, not for the
// read-modify-write paths, which must go through Apply.
func (s *MemoryAccounts) Put(acct broker.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = &accountEntry{acct: acct}
}

func (s *MemoryAccounts) entry(id string) (*accountEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	return e, ok
}

func (s *MemoryAccounts) Get(_ context.Context, id string) (broker.Account, error) {
	e, ok := s.entry(id)
	if !ok {
		return broker.Account{}, broker.ErrAccountNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (s *MemoryAccounts) Apply(_ context.Context, id string, fn func(*broker.Account) error) error {
	e, ok := s.entry(id)
	if !ok {
		return broker.ErrAccountNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	acct := e.acct
	if err := fn(&acct); err != nil {
		return err
	}
	e.acct = acct
	return nil
}

type positionEntry struct {
	mu  sync.Mutex
	pos broker.Position
}

// MemoryPositions is a PositionStore backed by a map with one lock per
// position, which makes Update's conditional mutation single-winner.
type MemoryPositions struct {
	mu        sync.RWMutex
	positions map[string]*positionEntry
}

func NewMemoryPositions() *MemoryPositions {
	return &MemoryPositions{positions: make(map[string]*positionEntry)}
}

func (s *MemoryPositions) Insert(_ context.Context, p broker.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = &positionEntry{pos: p}
	return nil
}

func (s *MemoryPositions) entry(id string) (*positionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.positions[id]
	return e, ok
}

func (s *MemoryPositions) Get(_ context.Context, id string) (broker.Position, error) {
	e, ok := s.entry(id)
	if !ok {
		return broker.Position{}, broker.ErrPositionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos, nil
}

func (s *MemoryPositions) Update(_ context.Context, id string, fn func(*broker.Position) error) error {
	e, ok := s.entry(id)
	if !ok {
		return broker.ErrPositionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.pos
	if err := fn(&pos); err != nil {
		return err
	}
	e.pos = pos
	return nil
}

func (s *MemoryPositions) ListOpen(_ context.Context, f broker.PositionFilter) ([]broker.Position, error) {
	s.mu.RLock()
	entries := make([]*positionEntry, 0, len(s.positions))
	for _, e := range s.positions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []broker.Position
	for _, e := range entries {
		e.mu.Lock()
		pos := e.pos
		e.mu.Unlock()
		if pos.Status != broker.StatusOpen {
			continue
		}
		if f.AccountID != "" && pos.AccountID != f.AccountID {
			continue
		}
		if f.Symbol != "" && pos.Symbol != f.Symbol {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}
