// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace holds the bounded two-level trace store and the
// codecs for the supported trace interchange formats.
package trace // import "github.com/auto-lens/lens/trace"

import "github.com/auto-lens/lens/can"

// SignalRow is one decoded signal child of a trace entry.
type SignalRow struct {
	Name  string
	Value string // "1450 rpm" or "2 (Drive)"
	Raw   string // "0x5A6"
}

// Entry is one decoded trace row: the source frame plus its
// pre-formatted display fields and decoded signal children.
// Display strings are built once at insertion time so consumers
// only do lookups.
type Entry struct {
	Frame can.Frame

	Time  string // "1234.567890" (ms)
	Name  string // database message name, "" if unknown
	ID    string // "0C4h" or "18DB33F1h"
	Chn   string
	Event string // "CAN" / "CAN FD" / "CAN FD BRS" / "Error Frame" / "Remote Frame"
	Dir   string // "Rx" or "Tx"
	DLC   string
	Data  string // "AA BB CC DD"

	Signals []SignalRow
}

// Mode selects how incoming entries are merged into the store.
type Mode int

const (
	ModeAppend  Mode = iota // every entry appends a row
	ModeInPlace             // one row per frame key, overwritten in place
)

// Hooks lets an observer follow store mutations. Nil funcs are
// skipped. A Reset covers every row at once and replaces the
// per-row notifications.
type Hooks struct {
	Inserted func(first, last int)
	Removed  func(first, last int)
	Updated  func(row int)
	Reset    func()
}

// Store is the bounded two-level trace container. Depth-0 rows are
// frames, depth-1 rows are their decoded signals. Not safe for
// concurrent use; the session controller owns all mutations.
type Store struct {
	// MaxRows caps the resident row count. When an incoming batch
	// would exceed it, the oldest PurgeChunk rows are removed in one
	// bulk operation, never one at a time.
	MaxRows    int
	PurgeChunk int

	mode  Mode
	rows  []Entry
	byKey map[uint64]int // frame key -> row, in-place mode only
	hooks Hooks
}

// NewStore returns a store with the default capacity bounds.
func NewStore() *Store {
	return &Store{
		MaxRows:    100000,
		PurgeChunk: 5000,
	}
}

func (s *Store) SetHooks(h Hooks) { s.hooks = h }

func (s *Store) Mode() Mode { return s.mode }

// SetMode switches the merge mode. Switching to in-place collapses
// the current rows by frame key: last write wins per key, rows keep
// the first-seen order of their key. Observers see one reset.
func (s *Store) SetMode(m Mode) {
	if m == s.mode {
		return
	}
	s.mode = m
	switch m {
	case ModeInPlace:
		s.byKey = make(map[uint64]int, len(s.rows))
		collapsed := s.rows[:0]
		for _, e := range s.rows {
			key := e.Frame.Key()
			if row, ok := s.byKey[key]; ok {
				collapsed[row] = e
				continue
			}
			s.byKey[key] = len(collapsed)
			collapsed = append(collapsed, e)
		}
		s.rows = collapsed
	case ModeAppend:
		s.byKey = nil
	}
	s.reset()
}

// Add merges a batch of entries into the store as a single
// operation.
func (s *Store) Add(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	switch s.mode {
	case ModeInPlace:
		s.addInPlace(entries)
	default:
		s.addAppend(entries)
	}
}

func (s *Store) addAppend(entries []Entry) {
	cur, incoming := len(s.rows), len(entries)
	if cur+incoming > s.MaxRows {
		toRemove := cur + incoming - s.MaxRows
		if toRemove < s.PurgeChunk {
			toRemove = s.PurgeChunk
		}
		if toRemove > cur {
			toRemove = cur
		}
		s.purgeOldest(toRemove)
	}
	first := len(s.rows)
	s.rows = append(s.rows, entries...)
	s.inserted(first, len(s.rows)-1)
}

func (s *Store) addInPlace(entries []Entry) {
	if s.byKey == nil {
		s.byKey = make(map[uint64]int)
	}
	first := -1
	for _, e := range entries {
		key := e.Frame.Key()
		if row, ok := s.byKey[key]; ok {
			// Overwrite in place. The whole entry is replaced, so the
			// signal child list is reconciled with it.
			s.rows[row] = e
			s.updated(row)
			continue
		}
		if len(s.rows) >= s.MaxRows {
			if first >= 0 {
				s.inserted(first, len(s.rows)-1)
				first = -1
			}
			n := s.PurgeChunk
			if n > len(s.rows) {
				n = len(s.rows)
			}
			s.purgeOldest(n)
		}
		s.byKey[key] = len(s.rows)
		if first < 0 {
			first = len(s.rows)
		}
		s.rows = append(s.rows, e)
	}
	if first >= 0 {
		s.inserted(first, len(s.rows)-1)
	}
}

func (s *Store) purgeOldest(n int) {
	if n <= 0 {
		return
	}
	s.rows = append(s.rows[:0], s.rows[n:]...)
	if s.byKey != nil {
		s.byKey = make(map[uint64]int, len(s.rows))
		for i, e := range s.rows {
			s.byKey[e.Frame.Key()] = i
		}
	}
	s.removed(0, n-1)
}

// Clear discards all rows and the key index in one operation,
// reported to observers as a single reset.
func (s *Store) Clear() {
	if len(s.rows) == 0 {
		return
	}
	s.rows = s.rows[:0]
	if s.byKey != nil {
		s.byKey = make(map[uint64]int)
	}
	s.reset()
}

func (s *Store) Len() int { return len(s.rows) }

// At returns the entry at row i.
func (s *Store) At(i int) Entry { return s.rows[i] }

// Entries returns a view of the resident rows, oldest first.
// The slice is owned by the store and valid until the next mutation.
func (s *Store) Entries() []Entry { return s.rows }

func (s *Store) inserted(first, last int) {
	if s.hooks.Inserted != nil && last >= first {
		s.hooks.Inserted(first, last)
	}
}

func (s *Store) removed(first, last int) {
	if s.hooks.Removed != nil && last >= first {
		s.hooks.Removed(first, last)
	}
}

func (s *Store) updated(row int) {
	if s.hooks.Updated != nil {
		s.hooks.Updated(row)
	}
}

func (s *Store) reset() {
	if s.hooks.Reset != nil {
		s.hooks.Reset()
	}
}
