// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestExportCSV(t *testing.T) {
	entries := []Entry{
		{Time: "1.000000", Name: "Engine", ID: "0C4h", Chn: "1",
			Event: "CAN", Dir: "Rx", DLC: "4", Data: "AA BB CC DD"},
		{Time: "2.000000", Name: `Odd,Name "quoted"`, ID: "153h", Chn: "1",
			Event: "CAN", Dir: "Rx", DLC: "0", Data: ""},
	}

	buf := new(bytes.Buffer)
	if err := ExportCSV(buf, entries); err != nil {
		t.Fatalf("export: %+v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if got, want := len(lines), 3; got != want {
		t.Fatalf("got %d lines, want %d:\n%s", got, want, buf.String())
	}
	if got, want := lines[0], "Time(ms),Name,ID,Chn,EventType,Dir,DLC,Data"; got != want {
		t.Errorf("got header=%q, want=%q", got, want)
	}
	if got, want := lines[1], "1.000000,Engine,0C4h,1,CAN,Rx,4,AA BB CC DD"; got != want {
		t.Errorf("got row=%q, want=%q", got, want)
	}
	if got, want := lines[2], `2.000000,"Odd,Name ""quoted""",153h,1,CAN,Rx,0,`; got != want {
		t.Errorf("got row=%q, want=%q", got, want)
	}
}
