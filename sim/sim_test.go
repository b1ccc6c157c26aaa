// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"testing"
	"time"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
)

func testDB() *dbc.Database {
	return dbc.NewDatabase([]dbc.Message{
		{
			ID:     0x0C4,
			Name:   "Engine",
			Length: 8,
			Signals: []dbc.Signal{
				{Name: "RPM", Start: 0, Length: 16, LittleEndian: true, Scale: 0.25, Min: 0, Max: 8000, Unit: "rpm"},
				{Name: "Running", Start: 16, Length: 1, LittleEndian: true, Scale: 1},
				{Name: "Gear", Start: 24, Length: 4, LittleEndian: true, Scale: 1,
					Values: map[int64]string{0: "Park", 1: "Reverse", 2: "Drive"}},
			},
		},
		{
			ID:     0x200,
			Name:   "Muxed",
			Length: 8,
			Signals: []dbc.Signal{
				{Name: "Sel", Start: 0, Length: 4, LittleEndian: true, Scale: 1, Mux: dbc.MuxSelector},
				{Name: "A", Start: 8, Length: 8, LittleEndian: true, Scale: 1, Mux: dbc.MuxValue, MuxVal: 0},
				{Name: "B", Start: 8, Length: 8, LittleEndian: true, Scale: 1, Mux: dbc.MuxValue, MuxVal: 1},
			},
		},
		{
			// FD-sized payload, excluded from the schedule
			ID:     0x300,
			Name:   "Wide",
			Length: 24,
			Signals: []dbc.Signal{
				{Name: "X", Start: 0, Length: 8, LittleEndian: true, Scale: 1},
			},
		},
		{
			// no signals, excluded from the schedule
			ID:     0x400,
			Name:   "Bare",
			Length: 8,
		},
	})
}

func TestBuildPlans(t *testing.T) {
	plans := buildPlans(testDB())
	if got, want := len(plans), 2; got != want {
		t.Fatalf("plan count: got=%d, want=%d", got, want)
	}
	if got, want := plans[0].msg.ID, uint32(0x0C4); got != want {
		t.Errorf("plan 0 id: got=0x%X, want=0x%X", got, want)
	}
	if got, want := plans[0].period, 1; got != want {
		t.Errorf("plan 0 period: got=%d, want=%d", got, want)
	}
	if got, want := plans[1].period, 2; got != want {
		t.Errorf("plan 1 period: got=%d, want=%d", got, want)
	}
	if got, want := len(plans[1].selVals), 2; got != want {
		t.Fatalf("selector branches: got=%d, want=%d", got, want)
	}
}

func TestBuildPlansEmpty(t *testing.T) {
	if plans := buildPlans(nil); plans != nil {
		t.Fatalf("nil database produced %d plan(s)", len(plans))
	}
	if plans := buildPlans(dbc.NewDatabase(nil)); plans != nil {
		t.Fatalf("empty database produced %d plan(s)", len(plans))
	}
}

func TestEmitDecodesWithinRange(t *testing.T) {
	db := testDB()
	plans := buildPlans(db)
	plan := plans[0]
	msg := db.MessageByID(0x0C4)
	rpm := &msg.Signals[0]

	for i := 0; i < 200; i++ {
		f := plan.emit(time.Duration(i) * tickPeriod)
		if f.ID != 0x0C4 || f.DLC != 8 {
			t.Fatalf("frame %d: id=0x%X dlc=%d", i, f.ID, f.DLC)
		}
		_, phys := rpm.Decode(f.Data[:8])
		if phys < rpm.Min || phys > rpm.Max {
			t.Fatalf("frame %d: RPM %v outside [%v,%v]", i, phys, rpm.Min, rpm.Max)
		}
	}
}

func TestEmitToggleSubPeriod(t *testing.T) {
	db := testDB()
	plan := buildPlans(db)[0]
	running := &db.MessageByID(0x0C4).Signals[1]

	// plan 0 emits every tick, so the toggle holds for toggleTicks
	// emissions before flipping
	sub := plan.sigs[1].sub
	if got, want := sub, toggleTicks; got != want {
		t.Fatalf("sub-period: got=%d, want=%d", got, want)
	}

	var raws []int64
	for i := 0; i < 2*sub; i++ {
		f := plan.emit(time.Duration(i) * tickPeriod)
		raws = append(raws, running.RawValue(f.Data[:8]))
	}
	for i := 1; i < sub; i++ {
		if raws[i] != raws[0] {
			t.Fatalf("emission %d: toggle flipped inside the sub-period", i)
		}
	}
	if raws[sub] == raws[0] {
		t.Fatalf("toggle did not flip after %d emissions", sub)
	}
	for i := sub + 1; i < 2*sub; i++ {
		if raws[i] != raws[sub] {
			t.Fatalf("emission %d: toggle flipped inside the second sub-period", i)
		}
	}
}

func TestEmitCyclesSelector(t *testing.T) {
	db := testDB()
	plan := buildPlans(db)[1]
	sel := db.MessageByID(0x200).Selector()
	if sel == nil {
		t.Fatalf("no selector on 0x200")
	}

	var seen []int64
	for i := 0; i < 4; i++ {
		f := plan.emit(time.Duration(i) * tickPeriod)
		seen = append(seen, sel.RawValue(f.Data[:8]))
	}
	want := []int64{0, 1, 0, 1}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("selector sequence: got=%v, want=%v", seen, want)
		}
	}
}

func TestEmitFallback(t *testing.T) {
	f := emitFallback(fallbackSchedule[0], 7, 70*time.Millisecond)
	if got, want := f.ID, uint32(0x0C4); got != want {
		t.Errorf("id: got=0x%X, want=0x%X", got, want)
	}
	if got, want := f.DLC, uint8(8); got != want {
		t.Errorf("dlc: got=%d, want=%d", got, want)
	}
	if got, want := f.Data[0], byte(7); got != want {
		t.Errorf("counter byte: got=%d, want=%d", got, want)
	}
	if got, want := f.Timestamp, uint64(70*time.Millisecond); got != want {
		t.Errorf("timestamp: got=%d, want=%d", got, want)
	}
}

func TestTransmitEcho(t *testing.T) {
	drv := New()
	if err := drv.Transmit(can.Frame{ID: 0x123}); err != can.ErrNotOpen {
		t.Fatalf("transmit on closed channel: got=%v, want=%v", err, can.ErrNotOpen)
	}

	chans, err := drv.DetectChannels()
	if err != nil {
		t.Fatalf("could not detect channels: %+v", err)
	}
	if got, want := len(chans), 1; got != want {
		t.Fatalf("channel count: got=%d, want=%d", got, want)
	}
	if err := drv.OpenChannel(chans[0], can.DefaultBusConfig()); err != nil {
		t.Fatalf("could not open channel: %+v", err)
	}
	defer drv.Shutdown()

	tx := can.Frame{ID: 0x6B2, DLC: 3, Data: [64]uint8{0xDE, 0xAD, 0xBE}}
	if err := drv.Transmit(tx); err != nil {
		t.Fatalf("could not transmit: %+v", err)
	}

	f, err := drv.Receive(time.Second)
	if err != nil {
		t.Fatalf("could not receive echo: %+v", err)
	}
	if f.ID != tx.ID || f.DLC != tx.DLC || !f.IsTxEcho() {
		t.Fatalf("echo mismatch: id=0x%X dlc=%d echo=%v", f.ID, f.DLC, f.IsTxEcho())
	}
	if got, want := f.Channel, uint8(1); got != want {
		t.Fatalf("echo channel: got=%d, want=%d", got, want)
	}
}

func TestGeneratorProducesFrames(t *testing.T) {
	drv := New()
	chans, _ := drv.DetectChannels()
	if err := drv.OpenChannel(chans[0], can.DefaultBusConfig()); err != nil {
		t.Fatalf("could not open channel: %+v", err)
	}
	defer drv.Shutdown()

	drv.StartRecv()
	defer drv.StopRecv()

	select {
	case f := <-drv.Frames():
		if f.ID == 0 {
			t.Fatalf("generated frame has no identifier")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame generated within 2s")
	}
}
