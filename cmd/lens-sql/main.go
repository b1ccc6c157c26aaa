// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-sql inspects and feeds the trace archive database.
package main // import "github.com/auto-lens/lens/cmd/lens-sql"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/trace"
	"github.com/auto-lens/lens/tracedb"
)

const dbname = "lensdb"

func main() {
	log.SetPrefix("lens-sql: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`lens-sql inspects and feeds the trace archive database.

Usage: lens-sql COMMAND [ARGS]

Commands:

 list              list the archived traces
 show ID           dump the frames of trace ID
 archive FILE      archive a trace file (.asc or .blf)

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing command")
	}

	db, err := tracedb.Open(dbname)
	if err != nil {
		log.Fatalf("could not open trace archive: %+v", err)
	}
	defer db.Close()

	ctx := context.Background()
	switch cmd := flag.Arg(0); cmd {
	case "list":
		err = list(ctx, db)
	case "show":
		if flag.NArg() != 2 {
			log.Fatalf("show needs a trace id")
		}
		id, cerr := strconv.ParseInt(flag.Arg(1), 10, 64)
		if cerr != nil {
			log.Fatalf("bad trace id %q: %+v", flag.Arg(1), cerr)
		}
		err = show(ctx, db, id)
	case "archive":
		if flag.NArg() != 2 {
			log.Fatalf("archive needs a trace file")
		}
		err = archive(ctx, db, flag.Arg(1))
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("could not %s: %+v", flag.Arg(0), err)
	}
}

func list(ctx context.Context, db *tracedb.DB) error {
	traces, err := db.Traces(ctx)
	if err != nil {
		return err
	}
	for _, t := range traces {
		fmt.Printf("%6d  %-30s  %s  %8d frame(s)\n",
			t.ID, t.Name, t.Created.Format("2006-01-02 15:04:05"), t.Frames,
		)
	}
	return nil
}

func show(ctx context.Context, db *tracedb.DB, id int64) error {
	frames, err := db.Frames(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range frames {
		row := trace.BuildEntry(f, nil)
		fmt.Printf("%14s  %-9s  %-11s %s  %2s  %s\n",
			row.Time, row.ID, row.Event, row.Dir, row.DLC, row.Data,
		)
	}
	return nil
}

func archive(ctx context.Context, db *tracedb.DB, fname string) error {
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
		dec, derr := trace.NewBLFDecoder(f)
		if derr != nil {
			return fmt.Errorf("could not read %q header: %w", fname, derr)
		}
		decode = dec.Decode
	default:
		return fmt.Errorf("unknown trace format %q", filepath.Ext(fname))
	}

	var frames []can.Frame
	for {
		var frame can.Frame
		err := decode(&frame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("could not decode %q: %w", fname, err)
		}
		frames = append(frames, frame)
	}

	if err := db.CreateSchema(ctx); err != nil {
		return err
	}
	id, err := db.StoreTrace(ctx, filepath.Base(fname), frames)
	if err != nil {
		return err
	}
	log.Printf("archived %q as trace %d (%d frame(s))", fname, id, len(frames))
	return nil
}
