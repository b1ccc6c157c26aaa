// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// trace-stats computes summary statistics for trace files.
//
// Usage: trace-stats [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> trace-stats ./run-001.blf
//  === run-001.blf ===
//  frames:    12045
//  duration:  60.001 s
//  rate:      200.7 frames/s
//  gap mean:  4.981 ms (rms 3.122 ms)
//  ids:
//    0C4h      6002  49.8%
//    153h      3001  24.9%
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
	"sort"
	"strings"

	"go-hep.org/x/hep/hbook"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/trace"
)

func main() {
	log.SetPrefix("trace-stats: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`trace-stats computes summary statistics for trace files.

Usage: trace-stats [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> trace-stats ./run-001.blf
 === run-001.blf ===
 frames:    12045
 duration:  60.001 s
 rate:      200.7 frames/s
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
		if err := stats(os.Stdout, fname); err != nil {
			log.Fatalf("could not analyze %q: %+v", fname, err)
		}
	}
}

func stats(w io.Writer, fname string) error {
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

	var (
		gaps  = hbook.NewH1D(100, 0, 100) // inter-frame gap in ms
		sizes = hbook.NewH1D(65, 0, 65)   // payload length in bytes
		ids   = make(map[uint32]int64)

		n     int64
		first uint64
		last  uint64
	)

	for {
		var frame can.Frame
		err := decode(&frame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("could not decode frame: %w", err)
		}
		if n == 0 {
			first = frame.Timestamp
		} else {
			gaps.Fill(float64(frame.Timestamp-last)/1e6, 1)
		}
		last = frame.Timestamp
		n++
		ids[frame.ID]++
		sizes.Fill(float64(frame.PayloadLen()), 1)
	}

	if n == 0 {
		return fmt.Errorf("no frames found")
	}

	dur := float64(last-first) / 1e9

	fmt.Fprintf(w, "=== %s ===\n", fname)
	fmt.Fprintf(w, "frames:    %d\n", n)
	fmt.Fprintf(w, "duration:  %.3f s\n", dur)
	if dur > 0 {
		fmt.Fprintf(w, "rate:      %.1f frames/s\n", float64(n)/dur)
	}
	if gaps.Entries() > 0 {
		fmt.Fprintf(w, "gap mean:  %.3f ms (rms %.3f ms)\n", gaps.XMean(), gaps.XRMS())
	}
	fmt.Fprintf(w, "dlc mean:  %.1f bytes\n", sizes.XMean())
	fmt.Fprintf(w, "ids:\n")

	type idCount struct {
		id uint32
		n  int64
	}
	list := make([]idCount, 0, len(ids))
	for id, cnt := range ids {
		list = append(list, idCount{id, cnt})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].id < list[j].id
	})
	for _, ic := range list {
		name := fmt.Sprintf("%03Xh", ic.id)
		if ic.id > 0x7FF {
			name = fmt.Sprintf("%08Xh", ic.id)
		}
		fmt.Fprintf(w, "  %-10s %7d  %5.1f%%\n", name, ic.n, 100*float64(ic.n)/float64(n))
	}
	return nil
}
