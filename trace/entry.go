// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
)

// BuildEntry formats a raw frame into a display entry, decoding its
// signals against db when the frame id is defined there. db may be
// nil.
func BuildEntry(f can.Frame, db *dbc.Database) Entry {
	e := Entry{Frame: f}

	// hardware ns -> display ms, 6 decimal places
	e.Time = strconv.FormatFloat(float64(f.Timestamp)/1e6, 'f', 6, 64)

	if f.IsExtended() {
		e.ID = fmt.Sprintf("%08Xh", f.ID)
	} else {
		e.ID = fmt.Sprintf("%03Xh", f.ID)
	}

	e.Chn = strconv.Itoa(int(f.Channel))

	// event type priority: error > remote > FD variants > classic
	switch {
	case f.IsError():
		e.Event = "Error Frame"
	case f.IsRemote():
		e.Event = "Remote Frame"
	case f.IsFD() && f.IsBRS():
		e.Event = "CAN FD BRS"
	case f.IsFD():
		e.Event = "CAN FD"
	default:
		e.Event = "CAN"
	}

	if f.IsTxEcho() {
		e.Dir = "Tx"
	} else {
		e.Dir = "Rx"
	}

	// FD frames show the actual byte count to avoid DLC code confusion
	if f.IsFD() && f.DLC > 8 {
		e.DLC = strconv.Itoa(f.PayloadLen())
	} else {
		e.DLC = strconv.Itoa(int(f.DLC))
	}

	var data strings.Builder
	n := f.PayloadLen()
	for i := 0; i < n; i++ {
		if i > 0 {
			data.WriteByte(' ')
		}
		fmt.Fprintf(&data, "%02X", f.Data[i])
	}
	e.Data = data.String()

	if db.IsEmpty() {
		return e
	}
	msg := db.MessageByID(f.ID)
	if msg == nil {
		return e
	}
	e.Name = msg.Name

	payload := f.Data[:n]

	// evaluate the mux selector first
	var (
		hasSel  bool
		selRaw  int64
		sigRows = make([]SignalRow, 0, len(msg.Signals))
	)
	if sel := msg.Selector(); sel != nil {
		hasSel = true
		selRaw = sel.RawValue(payload)
	}

	for i := range msg.Signals {
		sig := &msg.Signals[i]
		if sig.Mux == dbc.MuxValue && hasSel && sig.MuxVal != selRaw {
			continue
		}
		raw, phys := sig.Decode(payload)

		value := strconv.FormatFloat(phys, 'g', 8, 64)
		if sig.Unit != "" {
			value += " " + sig.Unit
		}
		if desc, ok := sig.Values[raw]; ok {
			value += " (" + desc + ")"
		}

		sigRows = append(sigRows, SignalRow{
			Name:  sig.Name,
			Value: value,
			Raw:   fmt.Sprintf("0x%X", raw),
		})
	}
	e.Signals = sigRows
	return e
}

// BuildEntries formats a whole batch in one pass.
func BuildEntries(frames []can.Frame, db *dbc.Database) []Entry {
	entries := make([]Entry, len(frames))
	for i, f := range frames {
		entries[i] = BuildEntry(f, db)
	}
	return entries
}
