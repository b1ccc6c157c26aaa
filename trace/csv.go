// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// csvHeader is the fixed column set of the CSV export, matching the
// display columns of the trace store.
var csvHeader = []string{"Time(ms)", "Name", "ID", "Chn", "EventType", "Dir", "DLC", "Data"}

// ExportCSV writes the display fields of entries as CSV: one header
// line, one line per frame row. Fields containing a comma or quote
// are quoted with internal quotes doubled.
func ExportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return xerrors.Errorf("trace: could not write CSV header: %w", err)
	}
	rec := make([]string, len(csvHeader))
	for i := range entries {
		e := &entries[i]
		rec[0] = e.Time
		rec[1] = e.Name
		rec[2] = e.ID
		rec[3] = e.Chn
		rec[4] = e.Event
		rec[5] = e.Dir
		rec[6] = e.DLC
		rec[7] = e.Data
		if err := cw.Write(rec); err != nil {
			return xerrors.Errorf("trace: could not write CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return xerrors.Errorf("trace: could not flush CSV stream: %w", err)
	}
	return nil
}
