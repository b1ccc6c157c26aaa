// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbc

import (
	"math"
	"testing"
)

func TestRawValue(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  Signal
		data []byte
		want int64
	}{
		{
			name: "intel-byte-aligned",
			sig:  Signal{Start: 8, Length: 8, LittleEndian: true},
			data: []byte{0x00, 0xA5, 0x00},
			want: 0xA5,
		},
		{
			name: "intel-straddle",
			sig:  Signal{Start: 4, Length: 8, LittleEndian: true},
			data: []byte{0xF0, 0x0F},
			want: 0xFF,
		},
		{
			name: "intel-16bit",
			sig:  Signal{Start: 0, Length: 16, LittleEndian: true},
			data: []byte{0x34, 0x12},
			want: 0x1234,
		},
		{
			name: "motorola-byte-aligned",
			sig:  Signal{Start: 7, Length: 8},
			data: []byte{0xA5, 0x00},
			want: 0xA5,
		},
		{
			name: "motorola-16bit",
			sig:  Signal{Start: 7, Length: 16},
			data: []byte{0x12, 0x34},
			want: 0x1234,
		},
		{
			name: "motorola-mid-byte",
			sig:  Signal{Start: 3, Length: 4},
			data: []byte{0x0B},
			want: 0xB,
		},
		{
			name: "signed-negative",
			sig:  Signal{Start: 0, Length: 8, LittleEndian: true, Signed: true},
			data: []byte{0xFF},
			want: -1,
		},
		{
			name: "signed-positive",
			sig:  Signal{Start: 0, Length: 8, LittleEndian: true, Signed: true},
			data: []byte{0x7F},
			want: 127,
		},
		{
			name: "signed-12bit",
			sig:  Signal{Start: 0, Length: 12, LittleEndian: true, Signed: true},
			data: []byte{0x00, 0x08},
			want: -2048,
		},
		{
			name: "out-of-payload-reads-zero",
			sig:  Signal{Start: 16, Length: 8, LittleEndian: true},
			data: []byte{0xFF},
			want: 0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.sig.RawValue(tc.data)
			if got != tc.want {
				t.Fatalf("got raw=%d (0x%X), want=%d (0x%X)", got, got, tc.want, tc.want)
			}
			// pure function: same bytes, same result.
			if again := tc.sig.RawValue(tc.data); again != got {
				t.Fatalf("raw value not stable: %d then %d", got, again)
			}
		})
	}
}

func TestPhysical(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  Signal
		raw  int64
		want float64
	}{
		{"identity", Signal{Scale: 1}, 42, 42},
		{"zero-scale-treated-as-one", Signal{}, 42, 42},
		{"scale-offset", Signal{Scale: 0.25, Offset: -40}, 400, 60},
		{"clamp-high", Signal{Scale: 1, Min: 0, Max: 100}, 250, 100},
		{"clamp-low", Signal{Scale: 1, Min: 0, Max: 100}, -3, 0},
		{"no-clamp-degenerate-range", Signal{Scale: 1, Min: 0, Max: 0}, 250, 250},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sig.Physical(tc.raw); got != tc.want {
				t.Fatalf("got phys=%v, want=%v", got, tc.want)
			}
		})
	}

	sig := Signal{Scale: 0.5, Offset: -10, Min: -10, Max: 50}
	for raw := int64(0); raw < 4096; raw += 7 {
		v := sig.Physical(raw)
		if v < sig.Min || v > sig.Max {
			t.Fatalf("raw=%d: phys=%v outside [%v,%v]", raw, v, sig.Min, sig.Max)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  Signal
		phys float64
	}{
		{"intel", Signal{Start: 8, Length: 12, LittleEndian: true, Scale: 0.1, Min: 0, Max: 409.5}, 123.4},
		{"motorola", Signal{Start: 7, Length: 16, Scale: 0.01, Offset: -100, Min: -100, Max: 555.35}, 42.42},
		{"signed", Signal{Start: 0, Length: 10, LittleEndian: true, Signed: true, Scale: 1, Min: -512, Max: 511}, -200},
		{"float32", Signal{Start: 0, Length: 32, LittleEndian: true, Float: Float32, Scale: 1}, 3.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var data [8]byte
			tc.sig.Encode(tc.phys, data[:])
			_, got := tc.sig.Decode(data[:])
			if math.Abs(got-tc.phys) > 1e-6 {
				t.Fatalf("round trip: got=%v, want=%v (data=% X)", got, tc.phys, data)
			}
		})
	}
}

func TestEncodeDoesNotClobberNeighbours(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	sig := Signal{Start: 8, Length: 8, LittleEndian: true, Scale: 1}
	sig.Encode(0, data)
	want := []byte{0xFF, 0x00, 0xFF, 0xFF}
	for i := range data {
		if data[i] != want[i] {
			t.Fatalf("got data=% X, want=% X", data, want)
		}
	}
}

func TestDatabase(t *testing.T) {
	db := NewDatabase([]Message{
		{ID: 0x0C4, Name: "Engine", Length: 8, Signals: []Signal{
			{Name: "RPM", Start: 0, Length: 16, LittleEndian: true, Scale: 0.25},
			{Name: "Temp", Start: 16, Length: 8, LittleEndian: true, Scale: 1, Offset: -40},
		}},
		{ID: 0x153, Name: "Chassis", Length: 8},
	})

	if db.IsEmpty() {
		t.Fatalf("database should not be empty")
	}
	if got, want := db.TotalSignalCount(), 2; got != want {
		t.Errorf("got %d signals, want %d", got, want)
	}
	if msg := db.MessageByID(0x0C4); msg == nil || msg.Name != "Engine" {
		t.Errorf("lookup 0x0C4: got %v", msg)
	}
	if msg := db.MessageByID(0x7FF); msg != nil {
		t.Errorf("lookup 0x7FF: got %v, want nil", msg)
	}

	other := NewDatabase([]Message{
		{ID: 0x153, Name: "Chassis2", Length: 8},
		{ID: 0x1A0, Name: "Body", Length: 4},
	})
	merged := db.Merge(other)
	if got, want := len(merged.Messages), 4; got != want {
		t.Fatalf("merge: got %d messages, want %d", got, want)
	}
	if msg := merged.MessageByID(0x153); msg == nil || msg.Name != "Chassis2" {
		t.Errorf("merge: duplicate id should resolve to the last definition, got %v", msg)
	}
	if msg := merged.MessageByID(0x1A0); msg == nil {
		t.Errorf("merge: missing 0x1A0")
	}
}

func TestSelector(t *testing.T) {
	msg := Message{Signals: []Signal{
		{Name: "A"},
		{Name: "Sel", Mux: MuxSelector},
		{Name: "B", Mux: MuxValue, MuxVal: 2},
	}}
	if sel := msg.Selector(); sel == nil || sel.Name != "Sel" {
		t.Fatalf("got selector=%v", msg.Selector())
	}
	none := Message{Signals: []Signal{{Name: "A"}}}
	if sel := none.Selector(); sel != nil {
		t.Fatalf("got selector=%v, want nil", sel)
	}
}
