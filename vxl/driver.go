// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vxl implements the CAN bus driver for Vector XL hardware.
//
// The vendor library is resolved dynamically at runtime: a missing
// library makes the driver unavailable, never a hard failure, so the
// caller can fall back to a synthetic source. Optional entry points
// form a capability set computed once at load; call sites consult it
// instead of probing symbols per call.
package vxl // import "github.com/auto-lens/lens/vxl"

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

// native constants shared with the vendor API.
const (
	busTypeCAN       = 1
	busCompatibleCAN = 1

	interfaceVersion   = 3 // classic events
	interfaceVersionV4 = 4 // FD events

	activateResetClock = 8

	outputModeSilent = 0
	outputModeNormal = 1

	extMsgID = 0x80000000

	capFDBosch = 0x20000000
	capFDISO   = 0x80000000

	rxQueueSize = 256
)

const invalidPort = -1

// Caps is the optional-symbol capability set computed at load time.
type Caps struct {
	ChannelMask bool
	ChannelMode bool
	FDConfig    bool
	FDTransmit  bool
	FDReceive   bool
	ErrorString bool
}

// channelConfig is one entry of the native driver configuration
// snapshot, converted out of the C layout.
type channelConfig struct {
	name         string
	hwType       int
	hwIndex      int
	hwChannel    int
	channelIndex int
	channelMask  uint64
	serial       uint32
	caps         uint32
	busCaps      uint32
	isOnBus      bool
	transceiver  string
}

type driverConfig struct {
	dllVersion uint32
	channels   []channelConfig
}

type waitResult int

const (
	waitOK waitResult = iota
	waitTimeout
	waitFailed
)

// Driver drives Vector XL hardware through the dynamically loaded
// vendor library. The zero value is not usable; call New.
type Driver struct {
	msg     *log.Logger
	appName string

	mu      sync.Mutex
	api     *api
	caps    Caps
	open    bool // xlOpenDriver succeeded
	port    int64
	portOK  bool
	mask    uint64
	perm    uint64
	notify  uintptr
	fd      bool
	chans   []channelConfig // raw snapshot from the last detection
	lastErr string

	frames chan can.Frame
	errs   chan error
	stop   chan struct{}
	done   chan struct{}
}

var _ can.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the message logger.
func WithLogger(msg *log.Logger) Option {
	return func(drv *Driver) { drv.msg = msg }
}

// WithAppName sets the application name registered with the vendor
// port.
func WithAppName(name string) Option {
	return func(drv *Driver) { drv.appName = name }
}

// New creates a Vector XL driver. The vendor library is not touched
// until Initialize.
func New(opts ...Option) *Driver {
	drv := &Driver{
		appName: "AutoLens",
		port:    invalidPort,
		frames:  make(chan can.Frame, 1024),
		errs:    make(chan error, 16),
	}
	for _, opt := range opts {
		opt(drv)
	}
	if drv.msg == nil {
		drv.msg = log.New(os.Stdout, "vxl: ", 0)
	}
	return drv
}

func (drv *Driver) Name() string { return "Vector XL" }

// IsAvailable reports whether the vendor library can be loaded.
func (drv *Driver) IsAvailable() bool {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.api != nil {
		return true
	}
	api, err := loadAPI()
	if err != nil {
		return false
	}
	api.unload()
	return true
}

// Initialize loads the vendor library, resolves its entry points and
// opens the driver. A missing library or missing mandatory symbol
// fails initialization; missing optional symbols only reduce the
// capability set.
func (drv *Driver) Initialize() error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.open {
		return nil
	}

	api, err := loadAPI()
	if err != nil {
		drv.setErr(err.Error())
		return xerrors.Errorf("vxl: could not load vendor library: %w", err)
	}

	if st := api.openDriver(); st != StatusOK {
		api.unload()
		drv.setErr(fmt.Sprintf("xlOpenDriver failed: %v", st))
		return xerrors.Errorf("vxl: could not open driver: %v", st)
	}

	drv.api = api
	drv.caps = api.capabilities()
	drv.open = true

	if cfg, st := api.config(); st == StatusOK {
		v := cfg.dllVersion
		drv.msg.Printf("initialized, DLL version %d.%d.%d",
			(v>>24)&0xFF, (v>>16)&0xFF, v&0xFFFF)
	}
	return nil
}

// Shutdown closes the channel and the driver and unloads the vendor
// library.
func (drv *Driver) Shutdown() {
	drv.StopRecv()

	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.closePortLocked()
	if drv.open {
		drv.api.closeDriver()
		drv.open = false
	}
	if drv.api != nil {
		drv.api.unload()
		drv.api = nil
	}
}

// DetectChannels queries the native configuration snapshot and
// filters it to CAN-capable channels. Channels exposing only other
// bus types (LIN, Ethernet) are excluded.
func (drv *Driver) DetectChannels() ([]can.ChannelInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.open {
		drv.setErr("driver not initialized")
		return nil, xerrors.Errorf("vxl: driver not initialized")
	}

	cfg, st := drv.api.config()
	if st != StatusOK {
		drv.setErr(fmt.Sprintf("xlGetDriverConfig: %v", st))
		return nil, xerrors.Errorf("vxl: could not read driver config: %v", st)
	}

	var (
		infos []can.ChannelInfo
		raw   []channelConfig
	)
	for _, ch := range cfg.channels {
		if ch.busCaps&busCompatibleCAN == 0 {
			continue
		}
		raw = append(raw, ch)
		infos = append(infos, can.ChannelInfo{
			Name:        ch.name,
			HWType:      ch.hwType,
			HWName:      hwTypeName(ch.hwType),
			HWIndex:     len(raw) - 1,
			Serial:      ch.serial,
			FDCapable:   ch.caps&(capFDISO|capFDBosch) != 0,
			Occupied:    ch.isOnBus,
			Transceiver: ch.transceiver,
		})
	}
	drv.chans = raw
	drv.msg.Printf("detected %d CAN channel(s)", len(infos))
	return infos, nil
}

// OpenChannel acquires the channel with init access if possible,
// configures bitrates and output mode, and activates it. If another
// application owns init access the channel continues in listen-only
// with a warning instead of failing.
func (drv *Driver) OpenChannel(info can.ChannelInfo, cfg can.BusConfig) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.open {
		return xerrors.Errorf("vxl: driver not initialized")
	}
	if drv.portOK {
		return xerrors.Errorf("vxl: channel already open")
	}
	if info.HWIndex < 0 || info.HWIndex >= len(drv.chans) {
		return xerrors.Errorf("vxl: channel index %d out of range", info.HWIndex)
	}
	ch := drv.chans[info.HWIndex]

	drv.fd = cfg.FD && info.FDCapable && drv.caps.FDConfig
	drv.mask = ch.channelMask
	if drv.caps.ChannelMask {
		// the snapshot mask can be stale after a hot-plug; re-resolve
		// it from the hardware coordinates when the library allows
		if m := drv.api.channelMask(ch.hwType, ch.hwIndex, ch.hwChannel); m != 0 {
			drv.mask = m
		}
	}

	ifVer := uint32(interfaceVersion)
	if drv.fd {
		ifVer = interfaceVersionV4
	}

	port, perm, st := drv.api.openPort(drv.appName, drv.mask, rxQueueSize, ifVer)
	if st != StatusOK {
		return drv.fail("xlOpenPort", st)
	}
	drv.port = port
	drv.perm = perm
	drv.portOK = true

	if drv.perm&drv.mask != 0 {
		if drv.fd {
			st = drv.api.fdSetConfiguration(drv.port, drv.mask, cfg.Bitrate, cfg.DataBitrate)
			if st != StatusOK {
				// device-level FD setup failed: downgrade to classic
				drv.msg.Printf("FD configuration rejected (%v), falling back to classic", st)
				drv.fd = false
			}
		}
		if !drv.fd {
			drv.api.setChannelBitrate(drv.port, drv.mask, cfg.Bitrate)
		}
		mode := int32(outputModeNormal)
		if cfg.ListenOnly {
			mode = outputModeSilent
		}
		drv.api.setChannelOutput(drv.port, drv.mask, mode)
		if drv.caps.ChannelMode {
			tx := int32(1)
			if cfg.ListenOnly {
				tx = 0
			}
			if st := drv.api.setChannelMode(drv.port, drv.mask, tx, 0); st != StatusOK {
				drv.msg.Printf("xlCanSetChannelMode rejected (%v), TX receipts unavailable", st)
			}
		}
	} else {
		drv.msg.Printf("no init access, continuing listen-only (another application owns the channel)")
	}

	notify, st := drv.api.setNotification(drv.port)
	if st == StatusOK {
		drv.notify = notify
	}

	if st := drv.api.activateChannel(drv.port, drv.mask); st != StatusOK {
		drv.api.closePort(drv.port)
		drv.port = invalidPort
		drv.portOK = false
		drv.notify = 0
		return drv.fail("xlActivateChannel", st)
	}

	drv.api.flushReceiveQueue(drv.port)
	drv.msg.Printf("channel open: %s fd=%v bitrate=%d", info.Name, drv.fd, cfg.Bitrate)
	return nil
}

// CloseChannel deactivates and closes the channel.
func (drv *Driver) CloseChannel() {
	drv.StopRecv()
	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.closePortLocked()
}

func (drv *Driver) closePortLocked() {
	if !drv.portOK {
		return
	}
	drv.api.deactivateChannel(drv.port, drv.mask)
	drv.api.closePort(drv.port)
	drv.port = invalidPort
	drv.portOK = false
	drv.mask = 0
	drv.perm = 0
	drv.notify = 0
	drv.fd = false
}

func (drv *Driver) IsOpen() bool {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.portOK
}

// Transmit routes the frame to the classic or FD encode path. The FD
// path requires the optional extended-transmit entry point.
func (drv *Driver) Transmit(f can.Frame) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.portOK {
		return can.ErrNotOpen
	}
	if drv.perm&drv.mask == 0 {
		return xerrors.Errorf("vxl: no TX access (listen-only)")
	}

	if f.IsFD() && drv.fd {
		if !drv.caps.FDTransmit {
			return xerrors.Errorf("vxl: FD transmit not available")
		}
		sent, st := drv.api.transmitEx(drv.port, drv.mask, &f)
		if st != StatusOK {
			return drv.fail("xlCanTransmitEx", st)
		}
		if sent == 0 {
			return xerrors.Errorf("vxl: TX queue full")
		}
		return nil
	}

	if st := drv.api.transmit(drv.port, drv.mask, &f); st != StatusOK {
		return drv.fail("xlCanTransmit", st)
	}
	return nil
}

// Receive blocks on the notification handle for at most timeout,
// then drains one event. The driver mutex is never held across the
// native wait, so a concurrent CloseChannel cannot deadlock.
func (drv *Driver) Receive(timeout time.Duration) (can.Frame, error) {
	drv.mu.Lock()
	if !drv.portOK {
		drv.mu.Unlock()
		return can.Frame{}, can.ErrNotOpen
	}
	api := drv.api
	port := drv.port
	notify := drv.notify
	fd := drv.fd && drv.caps.FDReceive
	drv.mu.Unlock()

	if notify != 0 {
		switch api.wait(notify, timeout) {
		case waitTimeout:
			return can.Frame{}, can.ErrTimeout
		case waitFailed:
			return can.Frame{}, xerrors.Errorf("vxl: wait on notification handle failed")
		}
	}

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.portOK {
		return can.Frame{}, can.ErrNotOpen
	}

	var (
		f  can.Frame
		st Status
	)
	if fd {
		f, st = drv.api.receiveFD(port)
	} else {
		f, st = drv.api.receive(port)
	}
	switch st {
	case StatusOK:
		return f, nil
	case StatusQueueEmpty:
		return can.Frame{}, can.ErrEmpty
	}
	return can.Frame{}, drv.fail("xlReceive", st)
}

// FlushReceiveQueue drops everything pending on the native queue.
func (drv *Driver) FlushReceiveQueue() error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if !drv.portOK {
		return can.ErrNotOpen
	}
	if st := drv.api.flushReceiveQueue(drv.port); st != StatusOK {
		return drv.fail("xlFlushReceiveQueue", st)
	}
	return nil
}

func (drv *Driver) LastError() string {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.lastErr
}

// StartRecv starts the receive worker. The worker blocks on the
// native wait with a bounded timeout so StopRecv is observed within
// one timeout interval.
func (drv *Driver) StartRecv() {
	drv.mu.Lock()
	if drv.stop != nil || !drv.portOK {
		drv.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	drv.stop = stop
	drv.done = done
	drv.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			f, err := drv.Receive(100 * time.Millisecond)
			switch {
			case err == nil:
				select {
				case drv.frames <- f:
				default: // consumer stalled, drop rather than block the worker
				}
			case err == can.ErrTimeout, err == can.ErrEmpty:
				// keep polling
			case err == can.ErrNotOpen:
				return
			default:
				select {
				case drv.errs <- err:
				default:
				}
			}
		}
	}()
}

// StopRecv stops the receive worker and waits for it to exit.
func (drv *Driver) StopRecv() {
	drv.mu.Lock()
	stop, done := drv.stop, drv.done
	drv.stop = nil
	drv.done = nil
	drv.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (drv *Driver) Frames() <-chan can.Frame { return drv.frames }
func (drv *Driver) Errs() <-chan error       { return drv.errs }

func (drv *Driver) setErr(msg string) {
	drv.lastErr = msg
	drv.msg.Printf("%s", msg)
}

func (drv *Driver) fail(ctx string, st Status) error {
	text := st.String()
	if drv.caps.ErrorString {
		if s := drv.api.errorString(st); s != "" {
			text = s
		}
	}
	msg := fmt.Sprintf("%s: %s", ctx, text)
	drv.setErr(msg)
	err := &StatusError{Op: ctx, Status: st, Text: text}
	select {
	case drv.errs <- err:
	default:
	}
	return err
}

// StatusError is a native call failure carrying its status code, so
// callers can classify it (e.g. auto-disconnect on dead hardware).
type StatusError struct {
	Op     string
	Status Status
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vxl: %s: %s", e.Op, e.Text)
}
