// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package vxl

import (
	"runtime"
	"time"

	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

// The vendor library only exists on Windows. On every other platform
// loading fails, so the driver reports itself unavailable and callers
// fall back to a synthetic source.

type api struct{}

func loadAPI() (*api, error) {
	return nil, xerrors.Errorf("vendor library not supported on %s", runtime.GOOS)
}

func (a *api) unload()            {}
func (a *api) capabilities() Caps { return Caps{} }

func (a *api) openDriver() Status  { return StatusDLLNotFound }
func (a *api) closeDriver() Status { return StatusDLLNotFound }

func (a *api) config() (driverConfig, Status) {
	return driverConfig{}, StatusDLLNotFound
}

func (a *api) openPort(app string, mask uint64, rxSize, ifVer uint32) (int64, uint64, Status) {
	return invalidPort, 0, StatusDLLNotFound
}

func (a *api) closePort(port int64) Status                    { return StatusDLLNotFound }
func (a *api) activateChannel(port int64, mask uint64) Status { return StatusDLLNotFound }
func (a *api) deactivateChannel(port int64, mask uint64) Status {
	return StatusDLLNotFound
}

func (a *api) setChannelBitrate(port int64, mask uint64, bitrate uint32) Status {
	return StatusDLLNotFound
}

func (a *api) setChannelOutput(port int64, mask uint64, mode int32) Status {
	return StatusDLLNotFound
}

func (a *api) setNotification(port int64) (uintptr, Status) {
	return 0, StatusDLLNotFound
}

func (a *api) flushReceiveQueue(port int64) Status { return StatusDLLNotFound }

func (a *api) channelMask(hwType, hwIndex, hwChannel int) uint64 { return 0 }

func (a *api) setChannelMode(port int64, mask uint64, tx, txrq int32) Status {
	return StatusDLLNotFound
}

func (a *api) fdSetConfiguration(port int64, mask uint64, arbBitrate, dataBitrate uint32) Status {
	return StatusDLLNotFound
}

func (a *api) transmit(port int64, mask uint64, f *can.Frame) Status {
	return StatusDLLNotFound
}

func (a *api) transmitEx(port int64, mask uint64, f *can.Frame) (uint32, Status) {
	return 0, StatusDLLNotFound
}

func (a *api) receive(port int64) (can.Frame, Status) {
	return can.Frame{}, StatusDLLNotFound
}

func (a *api) receiveFD(port int64) (can.Frame, Status) {
	return can.Frame{}, StatusDLLNotFound
}

func (a *api) errorString(st Status) string { return "" }

func (a *api) wait(notify uintptr, timeout time.Duration) waitResult {
	return waitFailed
}
