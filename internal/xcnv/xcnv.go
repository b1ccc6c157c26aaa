// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv converts between the supported trace formats.
package xcnv // import "github.com/auto-lens/lens/internal/xcnv"

import (
	"errors"
	"io"
	"log"

	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
	"github.com/auto-lens/lens/trace"
)

// ASC2BLF converts a text trace to the binary format.
func ASC2BLF(w io.WriteSeeker, dec *trace.ASCDecoder, msg *log.Logger) error {
	enc, err := trace.NewBLFEncoder(w)
	if err != nil {
		return xerrors.Errorf("could not create blf encoder: %w", err)
	}

	n, err := pump(enc, dec.Decode, msg)
	if err != nil {
		return xerrors.Errorf("could not convert asc to blf: %w", err)
	}

	if err := enc.Close(); err != nil {
		return xerrors.Errorf("could not close blf encoder: %w", err)
	}
	msg.Printf("converted %d frame(s)", n)
	return nil
}

// BLF2ASC converts a binary trace to the text format.
func BLF2ASC(w io.Writer, dec *trace.BLFDecoder, msg *log.Logger) error {
	enc := trace.NewASCEncoder(w)

	n, err := pump(enc, dec.Decode, msg)
	if err != nil {
		return xerrors.Errorf("could not convert blf to asc: %w", err)
	}

	if err := enc.Close(); err != nil {
		return xerrors.Errorf("could not close asc encoder: %w", err)
	}
	msg.Printf("converted %d frame(s)", n)
	return nil
}

type frameEncoder interface {
	Encode(f *can.Frame) error
}

func pump(enc frameEncoder, decode func(*can.Frame) error, msg *log.Logger) (int, error) {
	n := 0
	for {
		if n != 0 && n%10000 == 0 {
			msg.Printf("processing frame %d...", n)
		}
		var f can.Frame
		err := decode(&f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if err := enc.Encode(&f); err != nil {
			return n, err
		}
		n++
	}
}

// BLF2CSV decodes a binary trace, expands it against db and writes
// the display rows as CSV.
func BLF2CSV(w io.Writer, dec *trace.BLFDecoder, db *dbc.Database, msg *log.Logger) error {
	frames, err := drain(dec.Decode)
	if err != nil {
		return xerrors.Errorf("could not convert blf to csv: %w", err)
	}
	if err := trace.ExportCSV(w, trace.BuildEntries(frames, db)); err != nil {
		return xerrors.Errorf("could not convert blf to csv: %w", err)
	}
	msg.Printf("converted %d frame(s)", len(frames))
	return nil
}

// ASC2CSV decodes a text trace, expands it against db and writes the
// display rows as CSV.
func ASC2CSV(w io.Writer, dec *trace.ASCDecoder, db *dbc.Database, msg *log.Logger) error {
	frames, err := drain(dec.Decode)
	if err != nil {
		return xerrors.Errorf("could not convert asc to csv: %w", err)
	}
	if err := trace.ExportCSV(w, trace.BuildEntries(frames, db)); err != nil {
		return xerrors.Errorf("could not convert asc to csv: %w", err)
	}
	msg.Printf("converted %d frame(s)", len(frames))
	return nil
}

func drain(decode func(*can.Frame) error) ([]can.Frame, error) {
	var frames []can.Frame
	for {
		var f can.Frame
		err := decode(&f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return nil, err
		}
		frames = append(frames, f)
	}
}
