package activity

import "sync"

// MutationKind describes what a store mutation did.
type MutationKind string

const (
	MutationLoad    MutationKind = "load"
	MutationInsert  MutationKind = "insert"
	MutationReplace MutationKind = "replace"
)

// Mutation is delivered to listeners after the store changed.
type Mutation struct {
	Kind   MutationKind
	Record Record
	Size   int
}

// Listener consumes store mutations.
type Listener func(Mutation)

// Store holds the working set of activity records for the active window.
// Records are kept in recency order: merges prepend, so among records with
// equal timestamps the most recently merged one sorts first.
type Store struct {
	mu        sync.RWMutex
	records   []Record
	index     map[string]int
	listeners []Listener
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// OnMutation registers a listener invoked after every Load and Merge.
// Listeners run outside the store lock in registration order.
func (s *Store) OnMutation(listener Listener) {
	if s == nil || listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// Load replaces the working set wholesale. Used when the window changes;
// no ordering is assumed of the input.
func (s *Store) Load(records []Record) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.records = make([]Record, 0, len(records))
	s.index = make(map[string]int, len(records))
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		if pos, ok := s.index[record.ID]; ok {
			s.records[pos] = record
			continue
		}
		s.index[record.ID] = len(s.records)
		s.records = append(s.records, record)
	}
	size := len(s.records)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Mutation{Kind: MutationLoad, Size: size})
}

// Merge inserts a record at head-of-recency. A record with a known id
// replaces the stored copy in place, so duplicate push delivery is
// idempotent, not additive. Window membership is the caller's concern.
func (s *Store) Merge(record Record) {
	if s == nil || record.ID == "" {
		return
	}
	s.mu.Lock()
	kind := MutationInsert
	if pos, ok := s.index[record.ID]; ok {
		s.records[pos] = record
		kind = MutationReplace
	} else {
		s.records = append([]Record{record}, s.records...)
		for id, pos := range s.index {
			s.index[id] = pos + 1
		}
		s.index[record.ID] = 0
	}
	size := len(s.records)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Mutation{Kind: kind, Record: record, Size: size})
}

// All returns a copy of the current working set in recency order.
func (s *Store) All() []Record {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the working set size.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) snapshotListeners() []Listener {
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func notify(listeners []Listener, mutation Mutation) {
	for _, listener := range listeners {
		if listener != nil {
			listener(mutation)
		}
	}
}
