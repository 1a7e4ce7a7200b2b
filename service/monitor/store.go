package monitor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/txpulse/txpulse/service/ledger"
)

// addressState holds everything we know about one watched address. All state
// is process-lifetime only: on restart the store re-synchronizes from the
// ledger's current head and treats prior observations as unknown.
type addressState struct {
	address  string
	nickname string

	// known maps transaction id to the last observed status. Entries are
	// never evicted: a forgotten id would be misclassified as New if the
	// transaction reappeared (e.g. after a reorg briefly hides it).
	known map[string]ledger.Status

	// records keeps the full snapshots for the analytics engine.
	records map[string]*ledger.TransactionRecord

	// lastSyncMarker is the id of the newest finalized transaction from the
	// last fully successful fetch. It only ever advances.
	lastSyncMarker string

	// earliestObserved is the oldest record timestamp seen for this address,
	// used to decide whether an analytics window needs a historical fetch.
	earliestObserved time.Time

	// bootstrapped is set after the first successful cycle. Transactions
	// seen during bootstrap existed before we started watching and must not
	// produce notifications.
	bootstrapped bool
}

// AddressInfo is a read-only snapshot of an address's monitoring state.
type AddressInfo struct {
	Address      string    `json:"address"`
	Nickname     string    `json:"nickname"`
	TrackedCount int       `json:"tracked_count"`
	SyncMarker   string    `json:"sync_marker,omitempty"`
	Bootstrapped bool      `json:"bootstrapped"`
	OldestRecord time.Time `json:"oldest_record,omitempty"`
}

// Store is the in-memory address state store. The change detector is the
// only writer; the analytics engine and HTTP handlers read concurrently.
// Mutation is append/update-only, so readers never observe rolled-back
// state, only a possibly stale snapshot.
type Store struct {
	mu         sync.RWMutex
	states     map[string]*addressState
	byNickname map[string]string // lowercased nickname -> address
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		states:     make(map[string]*addressState),
		byNickname: make(map[string]string),
	}
}

// GetOrCreate registers an address for monitoring. Creating an existing
// address is a no-op (the nickname is not changed after creation).
func (s *Store) GetOrCreate(address, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[address]; ok {
		return
	}
	s.states[address] = &addressState{
		address:  address,
		nickname: nickname,
		known:    make(map[string]ledger.Status),
		records:  make(map[string]*ledger.TransactionRecord),
	}
	s.byNickname[strings.ToLower(nickname)] = address
}

// RecordSeen inserts or updates the observed state of a transaction. A
// Confirmed status is never downgraded back to Pending.
func (s *Store) RecordSeen(address string, rec *ledger.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[address]
	if !ok {
		return
	}

	if prev, seen := state.known[rec.ID]; seen && prev == ledger.StatusConfirmed && rec.Status == ledger.StatusPending {
		return
	}
	state.known[rec.ID] = rec.Status
	state.records[rec.ID] = rec
	if !rec.Timestamp.IsZero() && (state.earliestObserved.IsZero() || rec.Timestamp.Before(state.earliestObserved)) {
		state.earliestObserved = rec.Timestamp
	}
}

// StatusOf returns the last observed status of a transaction, if any.
func (s *Store) StatusOf(address, id string) (ledger.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[address]
	if !ok {
		return "", false
	}
	status, seen := state.known[id]
	return status, seen
}

// Marker returns the last sync marker for an address ("" before the first
// successful cycle).
func (s *Store) Marker(address string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[address]; ok {
		return state.lastSyncMarker
	}
	return ""
}

// AdvanceMarker moves the sync marker forward. Callers only invoke this
// after a fully successful fetch for the address; an empty marker is
// ignored so the cursor never rewinds.
func (s *Store) AdvanceMarker(address, marker string) {
	if marker == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[address]; ok {
		state.lastSyncMarker = marker
	}
}

// Bootstrapped reports whether the address has completed its first
// successful cycle.
func (s *Store) Bootstrapped(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[address]; ok {
		return state.bootstrapped
	}
	return false
}

// MarkBootstrapped records that the first cycle for an address completed.
func (s *Store) MarkBootstrapped(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[address]; ok {
		state.bootstrapped = true
	}
}

// MergeHistory adds historical records fetched for analytics, deduplicated
// by transaction id. Existing entries win: a historical fetch never
// overwrites what the detector has already observed.
func (s *Store) MergeHistory(address string, recs []*ledger.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[address]
	if !ok {
		return
	}
	for _, rec := range recs {
		if _, seen := state.known[rec.ID]; seen {
			continue
		}
		state.known[rec.ID] = rec.Status
		state.records[rec.ID] = rec
		if !rec.Timestamp.IsZero() && (state.earliestObserved.IsZero() || rec.Timestamp.Before(state.earliestObserved)) {
			state.earliestObserved = rec.Timestamp
		}
	}
}

// RecordsInWindow returns the records for an address whose timestamp falls
// in [start, end), oldest first. Pending records with no timestamp yet are
// included only when the window extends to "now" (end after the present),
// since they cannot be placed anywhere else.
func (s *Store) RecordsInWindow(address string, start, end time.Time) []*ledger.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[address]
	if !ok {
		return nil
	}

	var out []*ledger.TransactionRecord
	includePending := end.After(time.Now())
	for _, rec := range state.records {
		if rec.Timestamp.IsZero() {
			if includePending {
				out = append(out, rec)
			}
			continue
		}
		if !rec.Timestamp.Before(start) && rec.Timestamp.Before(end) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// EarliestObserved returns the oldest record timestamp seen for an address
// (zero if nothing has been observed yet).
func (s *Store) EarliestObserved(address string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[address]; ok {
		return state.earliestObserved
	}
	return time.Time{}
}

// ResolveNickname maps a wallet nickname to its address. Matching is exact
// and case-insensitive; there is deliberately no fuzzy matching.
func (s *Store) ResolveNickname(nickname string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.byNickname[strings.ToLower(nickname)]
	return address, ok
}

// Watches reports whether the address is registered for monitoring.
func (s *Store) Watches(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.states[address]
	return ok
}

// Nickname returns the configured nickname for an address.
func (s *Store) Nickname(address string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[address]; ok {
		return state.nickname
	}
	return ""
}

// Addresses returns a snapshot of all watched addresses, sorted by nickname.
func (s *Store) Addresses() []AddressInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AddressInfo, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, AddressInfo{
			Address:      state.address,
			Nickname:     state.nickname,
			TrackedCount: len(state.known),
			SyncMarker:   state.lastSyncMarker,
			Bootstrapped: state.bootstrapped,
			OldestRecord: state.earliestObserved,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nickname < out[j].Nickname
	})
	return out
}
