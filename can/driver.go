// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package can

import (
	"errors"
	"time"
)

// Sentinel errors shared by driver implementations.
var (
	ErrTimeout = errors.New("can: receive timeout")
	ErrEmpty   = errors.New("can: receive queue empty")
	ErrNotOpen = errors.New("can: channel not open")
)

// Driver is the capability interface a bus driver implements.
//
// Frames produced asynchronously (by the hardware receive worker or
// by the synthetic tick source) are delivered on the Frames channel;
// driver-level failures on the Errs channel. StartRecv and StopRecv
// bracket the asynchronous delivery for drivers that poll hardware;
// drivers with their own tick source implement them as no-ops.
type Driver interface {
	// Initialize loads and binds the driver backend. A missing
	// vendor library is not an error: it is reported through
	// IsAvailable instead, so the caller can pick a fallback.
	Initialize() error
	Shutdown()
	IsAvailable() bool
	Name() string

	DetectChannels() ([]ChannelInfo, error)
	OpenChannel(info ChannelInfo, cfg BusConfig) error
	CloseChannel()
	IsOpen() bool

	Transmit(f Frame) error
	Receive(timeout time.Duration) (Frame, error)
	FlushReceiveQueue() error
	LastError() string

	StartRecv()
	StopRecv()
	Frames() <-chan Frame
	Errs() <-chan error
}
