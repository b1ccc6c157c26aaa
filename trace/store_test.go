// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"testing"

	"github.com/auto-lens/lens/can"
)

func mkEntry(id uint32, ch uint8, b0 byte) Entry {
	f := can.Frame{ID: id, Channel: ch, DLC: 1}
	f.Data[0] = b0
	return BuildEntry(f, nil)
}

func TestStoreAppend(t *testing.T) {
	s := NewStore()
	s.MaxRows = 100
	s.PurgeChunk = 10

	batch := make([]Entry, 30)
	for i := range batch {
		batch[i] = mkEntry(uint32(i), 1, byte(i))
	}
	s.Add(batch)
	s.Add(batch)
	s.Add(batch)
	if got, want := s.Len(), 90; got != want {
		t.Fatalf("got %d rows, want %d", got, want)
	}

	// 90+30 > 100: purge must remove the oldest chunk first
	s.Add(batch)
	if s.Len() > s.MaxRows {
		t.Fatalf("store over capacity: %d > %d", s.Len(), s.MaxRows)
	}
	if got, want := s.Len(), 100; got != want {
		t.Fatalf("got %d rows, want %d", got, want)
	}
	// oldest rows gone: row 0 is now the 21st entry of the first batch
	if got, want := s.At(0).Frame.ID, uint32(20); got != want {
		t.Fatalf("got first row id=%d, want=%d", got, want)
	}
}

func TestStoreAppendLargeBatchNeverExceedsCap(t *testing.T) {
	s := NewStore()
	s.MaxRows = 50
	s.PurgeChunk = 5

	for n := 0; n < 20; n++ {
		batch := make([]Entry, 13)
		for i := range batch {
			batch[i] = mkEntry(uint32(n*13+i), 1, 0)
		}
		s.Add(batch)
		if s.Len() > s.MaxRows {
			t.Fatalf("after batch %d: %d rows > cap %d", n, s.Len(), s.MaxRows)
		}
	}
}

func TestStoreInPlace(t *testing.T) {
	s := NewStore()
	s.SetMode(ModeInPlace)

	e1 := mkEntry(0x0C4, 1, 0x11)
	e2 := mkEntry(0x0C4, 1, 0x22)
	e3 := mkEntry(0x153, 1, 0x33)

	s.Add([]Entry{e1, e3})
	if got, want := s.Len(), 2; got != want {
		t.Fatalf("got %d rows, want %d", got, want)
	}

	s.Add([]Entry{e2})
	if got, want := s.Len(), 2; got != want {
		t.Fatalf("same-key insert: got %d rows, want %d", got, want)
	}
	if got, want := s.At(0).Data, "22"; got != want {
		t.Fatalf("in-place overwrite: got data=%q, want=%q", got, want)
	}
	// first-seen order kept
	if got, want := s.At(1).Frame.ID, uint32(0x153); got != want {
		t.Fatalf("got second row id=%#x, want=%#x", got, want)
	}
}

func TestStoreInPlaceReconcilesSignals(t *testing.T) {
	s := NewStore()
	s.SetMode(ModeInPlace)

	e1 := mkEntry(0x0C4, 1, 0x11)
	e1.Signals = []SignalRow{{Name: "A"}, {Name: "B"}}
	e2 := mkEntry(0x0C4, 1, 0x22)
	e2.Signals = []SignalRow{{Name: "A"}}

	s.Add([]Entry{e1})
	s.Add([]Entry{e2})
	if got, want := len(s.At(0).Signals), 1; got != want {
		t.Fatalf("got %d signal rows, want %d", got, want)
	}
}

func TestStoreModeSwitchCollapse(t *testing.T) {
	s := NewStore()
	s.Add([]Entry{
		mkEntry(0x0C4, 1, 0x01),
		mkEntry(0x153, 1, 0x02),
		mkEntry(0x0C4, 1, 0x03),
		mkEntry(0x1A0, 2, 0x04),
		mkEntry(0x153, 1, 0x05),
	})
	s.SetMode(ModeInPlace)

	if got, want := s.Len(), 3; got != want {
		t.Fatalf("collapse: got %d rows, want %d", got, want)
	}
	// first-seen order, last-write-wins content
	wants := []struct {
		id   uint32
		data string
	}{
		{0x0C4, "03"},
		{0x153, "05"},
		{0x1A0, "04"},
	}
	for i, w := range wants {
		e := s.At(i)
		if e.Frame.ID != w.id || e.Data != w.data {
			t.Errorf("row %d: got (id=%#x data=%q), want (id=%#x data=%q)",
				i, e.Frame.ID, e.Data, w.id, w.data)
		}
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.SetMode(ModeInPlace)
	s.Add([]Entry{mkEntry(0x0C4, 1, 0x01)})

	resets := 0
	s.SetHooks(Hooks{Reset: func() { resets++ }})

	s.Clear()
	if got, want := s.Len(), 0; got != want {
		t.Fatalf("got %d rows, want %d", got, want)
	}
	if resets != 1 {
		t.Fatalf("got %d resets, want 1", resets)
	}

	// key index must be gone too: re-adding the same key appends anew
	s.Add([]Entry{mkEntry(0x0C4, 1, 0x02)})
	if got, want := s.Len(), 1; got != want {
		t.Fatalf("after clear+add: got %d rows, want %d", got, want)
	}
}

func TestStoreHooks(t *testing.T) {
	s := NewStore()
	s.MaxRows = 20
	s.PurgeChunk = 5

	var inserted, removed int
	s.SetHooks(Hooks{
		Inserted: func(first, last int) { inserted += last - first + 1 },
		Removed:  func(first, last int) { removed += last - first + 1 },
	})

	batch := make([]Entry, 10)
	for i := range batch {
		batch[i] = mkEntry(uint32(i), 1, 0)
	}
	s.Add(batch)
	s.Add(batch)
	s.Add(batch)

	if inserted != 30 {
		t.Errorf("got %d inserted, want 30", inserted)
	}
	if removed == 0 {
		t.Errorf("expected a purge notification")
	}
}
