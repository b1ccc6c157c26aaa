// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// trace-dump decodes and displays trace files.
//
// Usage: trace-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> trace-dump ./run-001.blf
//  === run-001.blf ===
//      0.000000  0C4h       CAN  Rx  8  11 5A 00 02 00 00 00 00
//      0.010012  0C4h       CAN  Rx  8  12 66 00 02 00 00 00 00
//      0.020010  153h       CAN  Rx  8  00 00 40 00 00 00 00 00
//  [...]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/trace"
)

func main() {
	log.SetPrefix("trace-dump: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`trace-dump decodes and displays trace files.

Usage: trace-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> trace-dump ./run-001.blf
 === run-001.blf ===
     0.000000  0C4h       CAN  Rx  8  11 5A 00 02 00 00 00 00
     0.010012  0C4h       CAN  Rx  8  12 66 00 02 00 00 00 00
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing input file(s)")
	}

	for _, fname := range flag.Args() {
		if err := dump(os.Stdout, fname); err != nil {
			log.Fatalf("could not dump %q: %+v", fname, err)
		}
	}
}

func dump(w io.Writer, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var decode func(*can.Frame) error
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".asc":
		decode = trace.NewASCDecoder(f).Decode
	case ".blf":
		dec, err := trace.NewBLFDecoder(f)
		if err != nil {
			return fmt.Errorf("could not read header: %w", err)
		}
		decode = dec.Decode
	default:
		return fmt.Errorf("unknown trace format %q", filepath.Ext(fname))
	}

	fmt.Fprintf(w, "=== %s ===\n", fname)
	for {
		var frame can.Frame
		err := decode(&frame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not decode frame: %w", err)
		}
		row := trace.BuildEntry(frame, nil)
		fmt.Fprintf(w, "%14s  %-9s  %-11s %s  %2s  %s\n",
			row.Time, row.ID, row.Event, row.Dir, row.DLC, row.Data,
		)
	}
}
