// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"testing"
	"time"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open tracedb: %+v", err)
	}
	defer db.Close()
}

func TestStoreTrace(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open tracedb: %+v", err)
	}
	defer db.Close()

	frames := []can.Frame{
		{ID: 0x0C4, DLC: 2, Data: [64]uint8{0xAA, 0xBB}, Timestamp: 1000},
		{ID: 0x153, DLC: 1, Data: [64]uint8{0x01}, Timestamp: 2000},
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		id, err := db.StoreTrace(ctx, "run-001", frames)
		if err != nil {
			t.Fatalf("could not store trace: %+v", err)
		}
		if got, want := id, int64(1); got != want {
			t.Fatalf("trace id: got=%d, want=%d", got, want)
		}
		// one trace row plus one row per frame
		if got, want := len(fakedb.Execs()), 3; got != want {
			t.Fatalf("exec count: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestTraces(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open tracedb: %+v", err)
	}
	defer db.Close()

	created := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "name", "created", "nframes"},
		Values: [][]driver.Value{
			{int64(2), "run-002", created, int64(120)},
			{int64(1), "run-001", created.Add(-time.Hour), int64(42)},
		},
	}, func(ctx context.Context) error {
		traces, err := db.Traces(ctx)
		if err != nil {
			t.Fatalf("could not list traces: %+v", err)
		}
		want := []TraceInfo{
			{ID: 2, Name: "run-002", Created: created, Frames: 120},
			{ID: 1, Name: "run-001", Created: created.Add(-time.Hour), Frames: 42},
		}
		if !reflect.DeepEqual(traces, want) {
			t.Fatalf("traces:\ngot= %+v\nwant=%+v", traces, want)
		}
		return nil
	})
}

func TestFrames(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open tracedb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"ts", "can_id", "channel", "flags", "dlc", "data"},
		Values: [][]driver.Value{
			{int64(1000), int64(0x0C4), int64(1), int64(0), int64(2), []byte{0xAA, 0xBB}},
			{int64(2000), int64(0x18DB33F1), int64(1), int64(can.Extended), int64(1), []byte{0x01}},
		},
	}, func(ctx context.Context) error {
		frames, err := db.Frames(ctx, 1)
		if err != nil {
			t.Fatalf("could not load frames: %+v", err)
		}
		if got, want := len(frames), 2; got != want {
			t.Fatalf("frame count: got=%d, want=%d", got, want)
		}
		if got, want := frames[0].ID, uint32(0x0C4); got != want {
			t.Errorf("frame 0 id: got=0x%X, want=0x%X", got, want)
		}
		if got, want := frames[0].Data[1], uint8(0xBB); got != want {
			t.Errorf("frame 0 data[1]: got=0x%X, want=0x%X", got, want)
		}
		if !frames[1].IsExtended() {
			t.Errorf("frame 1 lost its extended flag")
		}
		if got, want := frames[1].Timestamp, uint64(2000); got != want {
			t.Errorf("frame 1 timestamp: got=%d, want=%d", got, want)
		}
		return nil
	})
}
