// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-srv runs a measurement session and exposes it over a
// JSON control socket.
package main // import "github.com/auto-lens/lens/cmd/lens-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/auto-lens/lens/session"
	"github.com/auto-lens/lens/trace"
)

func main() {
	log.SetPrefix("lens-srv: ")
	log.SetFlags(0)

	var (
		addr    = flag.String("addr", ":9750", "[ip]:port for the control socket")
		rows    = flag.Int("rows", 100000, "maximum resident trace rows")
		inplace = flag.Bool("inplace", false, "start the trace store in in-place mode")
	)

	flag.Usage = func() {
		fmt.Printf(`lens-srv runs a measurement session and exposes it over a JSON control socket.

Usage: lens-srv [OPTIONS]

Example:

 $> lens-srv -addr :9750

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	store := trace.NewStore()
	store.MaxRows = *rows
	if *inplace {
		store.SetMode(trace.ModeInPlace)
	}

	ses := session.New(session.WithStore(store))
	if err := ses.Initialize(context.Background()); err != nil {
		log.Fatalf("could not initialize session: %+v", err)
	}
	defer ses.Shutdown()

	log.Printf("serving on %q...", *addr)
	if err := session.Serve(*addr, ses); err != nil {
		log.Fatalf("could not serve: %+v", err)
	}
}
