// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-capture records bus traffic for a fixed duration and
// writes the trace to a file. The output format follows the file
// extension (.asc, .blf, anything else is CSV).
package main // import "github.com/auto-lens/lens/cmd/lens-capture"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auto-lens/lens/session"
)

func main() {
	log.SetPrefix("lens-capture: ")
	log.SetFlags(0)

	var (
		out     = flag.String("o", "trace.blf", "output trace file")
		timeout = flag.Duration("d", 10*time.Second, "capture duration")
		channel = flag.Int("c", 0, "channel to record")
		bitrate = flag.Uint("bitrate", 500000, "arbitration bitrate (bit/s)")
		dbr     = flag.Uint("dbitrate", 2000000, "data bitrate (bit/s)")
		fd      = flag.Bool("fd", false, "enable CAN FD")
		txen    = flag.Bool("tx", false, "acknowledge frames instead of listen-only")
	)

	flag.Usage = func() {
		fmt.Printf(`lens-capture records bus traffic for a fixed duration.

Usage: lens-capture [OPTIONS]

Example:

 $> lens-capture -c 0 -d 30s -o run-001.blf

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := session.ChannelConfig{
		Enabled:     true,
		Bitrate:     uint32(*bitrate),
		FD:          *fd,
		DataBitrate: uint32(*dbr),
		TxEnabled:   *txen,
	}

	if err := run(*out, *timeout, *channel, cfg); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(out string, timeout time.Duration, channel int, cfg session.ChannelConfig) error {
	ses := session.New()
	if err := ses.Initialize(context.Background()); err != nil {
		return fmt.Errorf("could not initialize session: %w", err)
	}
	defer ses.Shutdown()

	ses.SetChannelConfig(channel, cfg)
	if err := ses.ConnectChannel(channel); err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	if err := ses.Start(); err != nil {
		return fmt.Errorf("could not start measurement: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case <-ctx.Done():
		case <-stop:
			log.Printf("interrupted")
			cancel()
		}
		return nil
	})
	grp.Go(func() error {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-ses.Events():
				if ev.Kind == session.EventError {
					log.Printf("driver error: %s", ev.Msg)
				}
			case <-tick.C:
				log.Printf("rows=%d rate=%.0f fps", ses.Rows(), ses.Rate())
			}
		}
	})
	if err := grp.Wait(); err != nil {
		return err
	}

	ses.Stop()
	if err := ses.Save(out); err != nil {
		return fmt.Errorf("could not save trace: %w", err)
	}
	log.Printf("wrote %d row(s) to %q", ses.Rows(), out)
	return nil
}
