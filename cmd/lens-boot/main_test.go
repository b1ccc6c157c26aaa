// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func TestReapMissingFile(t *testing.T) {
	fname := pidFile(t.TempDir(), "lens-srv")
	if err := reap(fname); err != nil {
		t.Fatalf("reap on a missing pid file: %+v", err)
	}
}

func TestReapMalformedFile(t *testing.T) {
	fname := pidFile(t.TempDir(), "lens-srv")
	if err := os.WriteFile(fname, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatalf("could not write pid file: %+v", err)
	}
	if err := reap(fname); err != nil {
		t.Fatalf("reap on a malformed pid file: %+v", err)
	}
	if _, err := os.Stat(fname); !os.IsNotExist(err) {
		t.Fatalf("malformed pid file was not removed")
	}
}

func TestReapRunningProcess(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("no sleep binary on this system")
	}

	cmd := exec.Command(sleep, "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start child: %+v", err)
	}
	defer cmd.Process.Kill()

	dir := t.TempDir()
	fname := pidFile(dir, filepath.Base(sleep))
	if err := os.WriteFile(fname, []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		t.Fatalf("could not write pid file: %+v", err)
	}

	if err := reap(fname); err != nil {
		t.Fatalf("reap: %+v", err)
	}
	if _, err := os.Stat(fname); !os.IsNotExist(err) {
		t.Fatalf("pid file was not removed")
	}
	if err := cmd.Wait(); err == nil {
		t.Fatalf("child survived reap")
	}
}
