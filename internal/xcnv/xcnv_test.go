// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
	"github.com/auto-lens/lens/trace"
)

const ascSrc = `date Mon Aug 31 10:00:00.000 am 2026
base hex  timestamps absolute
no internal events logged
Begin Triggerblock
   0.001000 1  0C4  Rx   d 2 AA BB
   0.002000 1  18DB33F1x  Tx   d 1 01
   0.003000 1  153  Rx   d 0
End TriggerBlock
`

func quiet() *log.Logger {
	return log.New(ioutil.Discard, "", 0)
}

func TestASC2BLF2ASC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.blf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("could not create blf file: %+v", err)
	}
	defer f.Close()

	err = ASC2BLF(f, trace.NewASCDecoder(strings.NewReader(ascSrc)), quiet())
	if err != nil {
		t.Fatalf("could not convert asc to blf: %+v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("could not close blf file: %+v", err)
	}

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read blf file: %+v", err)
	}
	dec, err := trace.NewBLFDecoder(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("could not create blf decoder: %+v", err)
	}

	asc := new(bytes.Buffer)
	if err := BLF2ASC(asc, dec, quiet()); err != nil {
		t.Fatalf("could not convert blf to asc: %+v", err)
	}

	var frames []can.Frame
	back := trace.NewASCDecoder(bytes.NewReader(asc.Bytes()))
	for {
		var frame can.Frame
		if err := back.Decode(&frame); err != nil {
			break
		}
		frames = append(frames, frame)
	}
	if got, want := len(frames), 3; got != want {
		t.Fatalf("frames after round trip: got=%d, want=%d", got, want)
	}
	if got, want := frames[0].ID, uint32(0x0C4); got != want {
		t.Errorf("frame 0 id: got=0x%X, want=0x%X", got, want)
	}
	if got, want := frames[0].Data[1], uint8(0xBB); got != want {
		t.Errorf("frame 0 data[1]: got=0x%X, want=0x%X", got, want)
	}
	if !frames[1].IsExtended() || !frames[1].IsTxEcho() {
		t.Errorf("frame 1 flags lost: ext=%v tx=%v", frames[1].IsExtended(), frames[1].IsTxEcho())
	}
}

func TestASC2CSV(t *testing.T) {
	db := dbc.NewDatabase([]dbc.Message{
		{
			ID:     0x0C4,
			Name:   "Engine",
			Length: 2,
			Signals: []dbc.Signal{
				{Name: "RPM", Start: 0, Length: 16, LittleEndian: true, Scale: 0.25, Unit: "rpm"},
			},
		},
	})

	csv := new(bytes.Buffer)
	err := ASC2CSV(csv, trace.NewASCDecoder(strings.NewReader(ascSrc)), db, quiet())
	if err != nil {
		t.Fatalf("could not convert asc to csv: %+v", err)
	}

	lines := strings.Split(strings.TrimRight(csv.String(), "\n"), "\n")
	if got, want := len(lines), 4; got != want {
		t.Fatalf("csv lines: got=%d, want=%d\n%s", got, want, csv.String())
	}
	if got, want := lines[0], "Time(ms),Name,ID,Chn,EventType,Dir,DLC,Data"; got != want {
		t.Fatalf("csv header: got=%q, want=%q", got, want)
	}
	if !strings.Contains(lines[1], "Engine") {
		t.Fatalf("csv row 1 lost its message name: %q", lines[1])
	}
}
