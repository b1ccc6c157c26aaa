// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"sync"
	"time"

	"github.com/auto-lens/lens/can"
)

// fakeDriver is an in-memory can.Driver for session tests. Frames
// are injected with inject() and transmitted frames are recorded.
type fakeDriver struct {
	initBlock   chan struct{} // non-nil: Initialize blocks until closed
	detectBlock chan struct{} // non-nil: DetectChannels blocks until closed
	initErr     error
	chans       []can.ChannelInfo

	mu      sync.Mutex
	inited  bool
	open    bool
	openCfg can.BusConfig
	openCh  can.ChannelInfo
	sent    []can.Frame
	lastErr string

	frames chan can.Frame
	errs   chan error
}

var _ can.Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		chans:  []can.ChannelInfo{{Name: "Fake Channel 1", HWName: "Fake", FDCapable: true}},
		frames: make(chan can.Frame, 256),
		errs:   make(chan error, 16),
	}
}

func (drv *fakeDriver) Initialize() error {
	if drv.initBlock != nil {
		<-drv.initBlock
	}
	if drv.initErr != nil {
		return drv.initErr
	}
	drv.mu.Lock()
	drv.inited = true
	drv.mu.Unlock()
	return nil
}

func (drv *fakeDriver) Shutdown() {
	drv.mu.Lock()
	drv.inited = false
	drv.open = false
	drv.mu.Unlock()
}

func (drv *fakeDriver) IsAvailable() bool { return drv.initErr == nil }
func (drv *fakeDriver) Name() string      { return "fake" }

func (drv *fakeDriver) DetectChannels() ([]can.ChannelInfo, error) {
	if drv.detectBlock != nil {
		<-drv.detectBlock
	}
	return drv.chans, nil
}

func (drv *fakeDriver) OpenChannel(info can.ChannelInfo, cfg can.BusConfig) error {
	drv.mu.Lock()
	drv.open = true
	drv.openCh = info
	drv.openCfg = cfg
	drv.mu.Unlock()
	return nil
}

func (drv *fakeDriver) CloseChannel() {
	drv.mu.Lock()
	drv.open = false
	drv.mu.Unlock()
}

func (drv *fakeDriver) IsOpen() bool {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.open
}

func (drv *fakeDriver) Transmit(f can.Frame) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.open {
		return can.ErrNotOpen
	}
	drv.sent = append(drv.sent, f)
	return nil
}

func (drv *fakeDriver) Receive(timeout time.Duration) (can.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-drv.frames:
		return f, nil
	case <-timer.C:
		return can.Frame{}, can.ErrTimeout
	}
}

func (drv *fakeDriver) FlushReceiveQueue() error { return nil }
func (drv *fakeDriver) LastError() string        { return drv.lastErr }

func (drv *fakeDriver) StartRecv() {}
func (drv *fakeDriver) StopRecv()  {}

func (drv *fakeDriver) Frames() <-chan can.Frame { return drv.frames }
func (drv *fakeDriver) Errs() <-chan error       { return drv.errs }

func (drv *fakeDriver) inject(f can.Frame) { drv.frames <- f }

func (drv *fakeDriver) opened() (can.ChannelInfo, can.BusConfig) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.openCh, drv.openCfg
}

func (drv *fakeDriver) transmitted() []can.Frame {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	out := make([]can.Frame, len(drv.sent))
	copy(out, drv.sent)
	return out
}
