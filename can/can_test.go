// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package can

import "testing"

func TestLenOfDLC(t *testing.T) {
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}
	for dlc := 0; dlc < 16; dlc++ {
		if got := LenOfDLC(uint8(dlc)); got != want[dlc] {
			t.Errorf("dlc=%d: got len=%d, want=%d", dlc, got, want[dlc])
		}
	}
	if got := LenOfDLC(31); got != 64 {
		t.Errorf("dlc=31: got len=%d, want=64", got)
	}
}

func TestDLCOfLen(t *testing.T) {
	for dlc := 0; dlc < 16; dlc++ {
		n := LenOfDLC(uint8(dlc))
		got := DLCOfLen(n)
		if LenOfDLC(got) != n {
			t.Errorf("len=%d: dlc=%d does not encode that length", n, got)
		}
		if got > uint8(dlc) {
			t.Errorf("len=%d: got dlc=%d, want smallest (<=%d)", n, got, dlc)
		}
	}
	for _, tc := range []struct {
		n    int
		want uint8
	}{
		{0, 0}, {8, 8}, {9, 9}, {12, 9}, {13, 10}, {33, 14}, {49, 15}, {64, 15},
	} {
		if got := DLCOfLen(tc.n); got != tc.want {
			t.Errorf("len=%d: got dlc=%d, want=%d", tc.n, got, tc.want)
		}
	}
}

func TestFrameKey(t *testing.T) {
	f1 := Frame{ID: 0x0C4, Channel: 1}
	f2 := Frame{ID: 0x0C4, Channel: 1, DLC: 8, Timestamp: 42}
	if f1.Key() != f2.Key() {
		t.Fatalf("payload-independent key: got %#x != %#x", f1.Key(), f2.Key())
	}

	for _, tc := range []struct {
		name string
		a, b Frame
	}{
		{"id", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C5, Channel: 1}},
		{"channel", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 2}},
		{"extended", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 1, Flags: Extended}},
		{"remote", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 1, Flags: Remote}},
		{"error", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 1, Flags: Error}},
		{"fd", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 1, Flags: FD}},
		{"tx-echo", Frame{ID: 0x0C4, Channel: 1}, Frame{ID: 0x0C4, Channel: 1, Flags: TxEcho}},
	} {
		if tc.a.Key() == tc.b.Key() {
			t.Errorf("%s: keys collide (%#x)", tc.name, tc.a.Key())
		}
	}
}

func TestFramePayload(t *testing.T) {
	f := Frame{DLC: 9, Flags: FD}
	f.Data[0] = 0xAA
	f.Data[11] = 0xBB
	p := f.Payload()
	if got, want := len(p), 12; got != want {
		t.Fatalf("got payload len=%d, want=%d", got, want)
	}
	if p[0] != 0xAA || p[11] != 0xBB {
		t.Fatalf("payload view does not alias frame data: % X", p)
	}
}
