// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trace-conv converts trace files between the supported
// formats. The direction follows the file extensions of the input
// and the -o output.
package main // import "github.com/auto-lens/lens/cmd/trace-conv"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/auto-lens/lens/internal/xcnv"
	"github.com/auto-lens/lens/trace"
)

func main() {
	log.SetPrefix("trace-conv: ")
	log.SetFlags(0)

	out := flag.String("o", "", "output trace file")

	flag.Usage = func() {
		fmt.Printf(`trace-conv converts trace files between the supported formats.

Usage: trace-conv -o OUTPUT FILE

Example:

 $> trace-conv -o run-001.asc run-001.blf
 $> trace-conv -o run-001.csv run-001.asc

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 || *out == "" {
		flag.Usage()
		log.Fatalf("need exactly one input file and -o")
	}

	if err := convert(flag.Arg(0), *out); err != nil {
		log.Fatalf("%+v", err)
	}
}

func convert(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", src, err)
	}
	defer in.Close()

	o, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", dst, err)
	}
	defer o.Close()

	msg := log.New(os.Stdout, "trace-conv: ", 0)

	from := strings.ToLower(filepath.Ext(src))
	to := strings.ToLower(filepath.Ext(dst))
	switch {
	case from == ".asc" && to == ".blf":
		err = xcnv.ASC2BLF(o, trace.NewASCDecoder(in), msg)
	case from == ".asc" && to == ".csv":
		err = xcnv.ASC2CSV(o, trace.NewASCDecoder(in), nil, msg)
	case from == ".blf" && to == ".asc":
		dec, derr := trace.NewBLFDecoder(in)
		if derr != nil {
			return fmt.Errorf("could not read %q header: %w", src, derr)
		}
		err = xcnv.BLF2ASC(o, dec, msg)
	case from == ".blf" && to == ".csv":
		dec, derr := trace.NewBLFDecoder(in)
		if derr != nil {
			return fmt.Errorf("could not read %q header: %w", src, derr)
		}
		err = xcnv.BLF2CSV(o, dec, nil, msg)
	default:
		return fmt.Errorf("unsupported conversion %q -> %q", from, to)
	}
	if err != nil {
		return err
	}

	if err := o.Close(); err != nil {
		return fmt.Errorf("could not close %q: %w", dst, err)
	}
	return nil
}
