// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package vxl

import "testing"

func TestAPIStubs(t *testing.T) {
	if _, err := loadAPI(); err == nil {
		t.Fatalf("loadAPI did not fail without the vendor library")
	}

	a := &api{}
	if got, want := a.capabilities(), (Caps{}); got != want {
		t.Fatalf("capabilities: got=%+v, want=%+v", got, want)
	}
	if got := a.channelMask(1, 0, 0); got != 0 {
		t.Fatalf("channelMask: got=%#x, want=0", got)
	}
	if got, want := a.setChannelMode(0, 1, 1, 0), StatusDLLNotFound; got != want {
		t.Fatalf("setChannelMode: got=%v, want=%v", got, want)
	}
}
