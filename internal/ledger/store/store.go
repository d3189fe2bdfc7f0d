// Package store holds attestation state: one position list per attribute key,
// lanes grouping records by (subject, tokenId), soulbound balances and the
// DID to account index.
//
// Every mutation is journaled on the active call so a failed call restores
// the exact prior layout, slot positions included.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/ledger/models"
	"passport/pkg/orderedset"
)

// Lane identifies the soulbound token a record counts towards.
type Lane struct {
	Subject common.Address
	TokenID uint64
}

// LaneEntry locates one record from its lane.
type LaneEntry struct {
	Key    models.AttributeKey
	Issuer common.Address
}

// Slot is one position in a position list.
type Slot struct {
	Record  models.AttributeRecord
	Subject common.Address
	TokenID uint64
	Type    models.AttributeType
	// DID is set for DID-keyed records.
	DID common.Hash
}

func (s Slot) Lane() Lane { return Lane{Subject: s.Subject, TokenID: s.TokenID} }

type positionList struct {
	slots    []Slot
	byIssuer map[common.Address]int
}

type didAccount struct {
	did     common.Hash
	account common.Address
}

// Store is the in-memory attestation state.
type Store struct {
	mu          sync.RWMutex
	lists       map[models.AttributeKey]*positionList
	lanes       map[Lane]*orderedset.Set[LaneEntry]
	balances    map[Lane]struct{}
	didRefs     map[didAccount]int
	didAccounts map[common.Hash]*orderedset.Set[common.Address]
}

func New() *Store {
	return &Store{
		lists:       make(map[models.AttributeKey]*positionList),
		lanes:       make(map[Lane]*orderedset.Set[LaneEntry]),
		balances:    make(map[Lane]struct{}),
		didRefs:     make(map[didAccount]int),
		didAccounts: make(map[common.Hash]*orderedset.Set[common.Address]),
	}
}

// PutResult describes what Put replaced.
type PutResult struct {
	Overwrote bool
	Previous  Slot
}

// Put writes slot at key. An issuer that already holds a slot at key is
// overwritten in place; a new issuer is appended.
func (s *Store) Put(ctx context.Context, key models.AttributeKey, slot Slot) PutResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuer := slot.Record.Issuer
	entry := LaneEntry{Key: key, Issuer: issuer}
	pl, ok := s.lists[key]
	if !ok {
		pl = &positionList{byIssuer: make(map[common.Address]int)}
		s.lists[key] = pl
		s.journal(ctx, func() { delete(s.lists, key) })
	}

	if i, exists := pl.byIssuer[issuer]; exists {
		old := pl.slots[i]
		pl.slots[i] = slot
		s.journal(ctx, func() { pl.slots[i] = old })
		if old.Lane() != slot.Lane() {
			s.removeFromLane(ctx, old.Lane(), entry)
			s.addToLane(ctx, slot.Lane(), entry)
		}
		s.unindexDID(ctx, old)
		s.indexDID(ctx, slot)
		return PutResult{Overwrote: true, Previous: old}
	}

	pl.byIssuer[issuer] = len(pl.slots)
	pl.slots = append(pl.slots, slot)
	s.journal(ctx, func() {
		pl.slots = pl.slots[:len(pl.slots)-1]
		delete(pl.byIssuer, issuer)
	})
	s.addToLane(ctx, slot.Lane(), entry)
	s.indexDID(ctx, slot)
	return PutResult{}
}

// Remove deletes the slot issuer holds at key by swapping the last slot into
// its position.
func (s *Store) Remove(ctx context.Context, key models.AttributeKey, issuer common.Address) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, ok := s.lists[key]
	if !ok {
		return Slot{}, false
	}
	i, ok := pl.byIssuer[issuer]
	if !ok {
		return Slot{}, false
	}
	removed := pl.slots[i]
	last := len(pl.slots) - 1
	moved := pl.slots[last]
	if i != last {
		pl.slots[i] = moved
		pl.byIssuer[moved.Record.Issuer] = i
	}
	pl.slots = pl.slots[:last]
	delete(pl.byIssuer, issuer)
	emptied := len(pl.slots) == 0
	if emptied {
		delete(s.lists, key)
	}
	s.journal(ctx, func() {
		if emptied {
			s.lists[key] = pl
		}
		pl.slots = append(pl.slots, moved)
		if i != last {
			pl.byIssuer[moved.Record.Issuer] = last
			pl.slots[i] = removed
		}
		pl.byIssuer[issuer] = i
	})

	s.removeFromLane(ctx, removed.Lane(), LaneEntry{Key: key, Issuer: issuer})
	s.unindexDID(ctx, removed)
	return removed, true
}

// SetBalance sets the soulbound balance of lane to 1 or 0.
func (s *Store) SetBalance(ctx context.Context, lane Lane, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, had := s.balances[lane]
	if had == held {
		return
	}
	if held {
		s.balances[lane] = struct{}{}
		s.journal(ctx, func() { delete(s.balances, lane) })
		return
	}
	delete(s.balances, lane)
	s.journal(ctx, func() { s.balances[lane] = struct{}{} })
}

// =============================================================================
// Reads
// =============================================================================

// Records returns the records at key in position order.
func (s *Store) Records(key models.AttributeKey) []models.AttributeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.lists[key]
	if !ok {
		return nil
	}
	out := make([]models.AttributeRecord, len(pl.slots))
	for i, slot := range pl.slots {
		out[i] = slot.Record
	}
	return out
}

// Slots returns the slots at key in position order.
func (s *Store) Slots(key models.AttributeKey) []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.lists[key]
	if !ok {
		return nil
	}
	return append([]Slot(nil), pl.slots...)
}

// Len returns the length of the position list at key.
func (s *Store) Len(key models.AttributeKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pl, ok := s.lists[key]; ok {
		return len(pl.slots)
	}
	return 0
}

// Slot returns the slot issuer holds at key.
func (s *Store) Slot(key models.AttributeKey, issuer common.Address) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.lists[key]
	if !ok {
		return Slot{}, false
	}
	i, ok := pl.byIssuer[issuer]
	if !ok {
		return Slot{}, false
	}
	return pl.slots[i], true
}

// LaneEntries returns the records counting towards lane in insertion order,
// adjusted by swap-delete.
func (s *Store) LaneEntries(lane Lane) []LaneEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.lanes[lane]; ok {
		return set.Values()
	}
	return nil
}

// LaneSize returns how many records count towards lane.
func (s *Store) LaneSize(lane Lane) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.lanes[lane]; ok {
		return set.Len()
	}
	return 0
}

// HasBalance reports whether lane holds its soulbound token.
func (s *Store) HasBalance(lane Lane) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.balances[lane]
	return ok
}

// AccountsForDID returns the accounts holding a DID record with value did.
func (s *Store) AccountsForDID(did common.Hash) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.didAccounts[did]; ok {
		return set.Values()
	}
	return nil
}

// SubjectDID returns the value of the first DID record about subject.
func (s *Store) SubjectDID(subject common.Address) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.lists[models.KeyForAccount(subject, models.TypeDID)]
	if !ok || len(pl.slots) == 0 {
		return common.Hash{}, false
	}
	return pl.slots[0].Record.Value, true
}

// SlotsBySubject returns every slot written for subject, ordered by token id
// and then lane position.
func (s *Store) SlotsBySubject(subject common.Address) []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lanes []Lane
	for lane := range s.lanes {
		if lane.Subject == subject {
			lanes = append(lanes, lane)
		}
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].TokenID < lanes[j].TokenID })

	var out []Slot
	for _, lane := range lanes {
		for _, entry := range s.lanes[lane].Values() {
			pl := s.lists[entry.Key]
			out = append(out, pl.slots[pl.byIssuer[entry.Issuer]])
		}
	}
	return out
}

// =============================================================================
// Internal helpers (callers hold s.mu)
// =============================================================================

func (s *Store) addToLane(ctx context.Context, lane Lane, entry LaneEntry) {
	set, ok := s.lanes[lane]
	if ok && set.Contains(entry) {
		return
	}
	snapshot(ctx, s, s.lanes, lane)
	if !ok {
		set = orderedset.New[LaneEntry]()
		s.lanes[lane] = set
	}
	set.Add(entry)
}

func (s *Store) removeFromLane(ctx context.Context, lane Lane, entry LaneEntry) {
	set, ok := s.lanes[lane]
	if !ok || !set.Contains(entry) {
		return
	}
	snapshot(ctx, s, s.lanes, lane)
	set.Remove(entry)
	if set.Len() == 0 {
		delete(s.lanes, lane)
	}
}

func (s *Store) indexDID(ctx context.Context, slot Slot) {
	if slot.Type != models.TypeDID {
		return
	}
	k := didAccount{did: slot.Record.Value, account: slot.Subject}
	s.didRefs[k]++
	s.journal(ctx, func() { s.decRef(k) })
	if s.didRefs[k] > 1 {
		return
	}
	snapshot(ctx, s, s.didAccounts, k.did)
	set, ok := s.didAccounts[k.did]
	if !ok {
		set = orderedset.New[common.Address]()
		s.didAccounts[k.did] = set
	}
	set.Add(k.account)
}

func (s *Store) unindexDID(ctx context.Context, slot Slot) {
	if slot.Type != models.TypeDID {
		return
	}
	k := didAccount{did: slot.Record.Value, account: slot.Subject}
	if s.didRefs[k] == 0 {
		return
	}
	s.decRef(k)
	s.journal(ctx, func() { s.didRefs[k]++ })
	if s.didRefs[k] > 0 {
		return
	}
	set, ok := s.didAccounts[k.did]
	if !ok {
		return
	}
	snapshot(ctx, s, s.didAccounts, k.did)
	set.Remove(k.account)
	if set.Len() == 0 {
		delete(s.didAccounts, k.did)
	}
}

// snapshot journals the current content of m[k] so undo restores it exactly,
// positions included.
func snapshot[K comparable, V comparable](ctx context.Context, s *Store, m map[K]*orderedset.Set[V], k K) {
	prev, ok := m[k]
	if !ok {
		s.journal(ctx, func() { delete(m, k) })
		return
	}
	clone := prev.Clone()
	s.journal(ctx, func() { m[k] = clone })
}

func (s *Store) decRef(k didAccount) {
	s.didRefs[k]--
	if s.didRefs[k] <= 0 {
		delete(s.didRefs, k)
	}
}

// journal records undo to run under the write lock if the active call fails.
func (s *Store) journal(ctx context.Context, undo func()) {
	chain.Record(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		undo()
	})
}
