// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-boot (re)starts the acquisition processes.
//
// Each child records its pid in <dir>/<name>.pid; a fresh boot reaps
// whatever process the file names before starting a new one, so no
// two acquisition stacks run against the same hardware.
package main // import "github.com/auto-lens/lens/cmd/lens-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		addr   = flag.String("addr", ":9750", "address of the control server")
		dir    = flag.String("dir", "", "log directory (default $LENSLOGDIR or /var/log/lens)")
		doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	)
	flag.Parse()

	log.SetPrefix("lens-boot: ")
	log.SetFlags(0)

	if *dir == "" {
		*dir = os.Getenv("LENSLOGDIR")
	}
	if *dir == "" {
		*dir = "/var/log/lens"
	}

	cmds := []*exec.Cmd{
		exec.Command("lens-srv", "-addr", *addr),
		exec.Command("lens-ctl", "-addr", "localhost"+*addr),
	}

	stop := make(chan os.Signal, 1)
	err := run(*doMon, *doFreq, cmds, *dir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		err := reap(pidFile(dir, name))
		if err != nil {
			log.Printf("could not reap previous %q: %+v", name, err)
		}
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		cmd := cmds[i]
		grp.Go(func() error {
			return start(cmd, dir, kill, doMon, freq)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot acquisition: %w", err)
	}
	return nil
}

func pidFile(dir, name string) string {
	return filepath.Join(dir, name+".pid")
}

// reap terminates the process named by the pid file, if any, and
// removes the file. A file naming an already dead process is only
// cleaned up.
func reap(fname string) error {
	raw, err := os.ReadFile(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not read pid file %q: %w", fname, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		log.Printf("dropping malformed pid file %q", fname)
		return os.Remove(fname)
	}

	if proc, err := os.FindProcess(pid); err == nil {
		if err := proc.Kill(); err == nil {
			log.Printf("stopped previous instance (pid=%d)", pid)
		}
	}
	return os.Remove(fname)
}

func start(cmd *exec.Cmd, dir string, kill chan int, doMon bool, freq time.Duration) error {
	name := filepath.Base(cmd.Path)
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	pidf := pidFile(dir, name)
	err = os.WriteFile(pidf, []byte(strconv.Itoa(cmd.Process.Pid)), 0644)
	if err != nil {
		return fmt.Errorf("could not write pid file for %q: %w", name, err)
	}
	defer os.Remove(pidf)

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon %q...", name)
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %+v", name, err)
		}
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
