// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim implements a synthetic CAN bus driver. It generates
// plausible traffic from a signal database when one is loaded and
// falls back to a fixed set of frames otherwise, so the rest of the
// pipeline can run without Vector hardware attached.
package sim // import "github.com/auto-lens/lens/sim"

import (
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
)

const (
	tickPeriod  = 10 * time.Millisecond
	maxPlanMsgs = 8

	// toggleTicks is the half-period of 1-bit signals, in ticks of
	// bus time. Each plan divides it by its own emission period.
	toggleTicks = 50
)

// tickPeriods are the emission periods, in ticks, assigned to planned
// messages round-robin by message index.
var tickPeriods = []int{1, 2, 5, 10, 20, 50, 100, 200}

type sigKind int

const (
	sigConstant sigKind = iota
	sigSelector
	sigValueTable
	sigToggle
	sigSine
)

// sigPlan drives one signal of a planned message.
type sigPlan struct {
	sig  *dbc.Signal
	kind sigKind

	keys []int64 // sorted value table keys, cycled
	idx  int

	on  bool // toggle state
	sub int  // emissions between toggle flips

	center float64
	amp    float64
	freq   float64
}

// msgPlan drives one message of the synthetic schedule.
type msgPlan struct {
	msg    *dbc.Message
	period int // ticks between emissions
	count  uint64
	sigs   []*sigPlan

	selVals []int64 // selector branch values, cycled
	selIdx  int
}

// fallbackMsg is one entry of the database-free schedule.
type fallbackMsg struct {
	id     uint32
	dlc    uint8
	period int // ticks
}

var fallbackSchedule = []fallbackMsg{
	{0x0C4, 8, 1},   // 10 ms
	{0x153, 8, 2},   // 20 ms
	{0x1A0, 8, 10},  // 100 ms
	{0x6B2, 4, 50},  // 500 ms
	{0x7DF, 8, 500}, // 5 s
}

// Driver is a synthetic can.Driver. It is always available, exposes a
// single virtual channel and echoes transmitted frames back with the
// echo flag set.
type Driver struct {
	msg *log.Logger

	mu      sync.Mutex
	open    bool
	plans   []*msgPlan
	start   time.Time
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

// New creates a synthetic driver without a schedule. Load one with
// SetDatabase or rely on the built-in fallback traffic.
func New(opts ...Option) *Driver {
	drv := &Driver{
		frames: make(chan can.Frame, 1024),
		errs:   make(chan error, 16),
	}
	for _, opt := range opts {
		opt(drv)
	}
	if drv.msg == nil {
		drv.msg = log.New(os.Stdout, "sim: ", 0)
	}
	return drv
}

func (drv *Driver) Name() string      { return "Simulation" }
func (drv *Driver) IsAvailable() bool { return true }
func (drv *Driver) Initialize() error { return nil }

func (drv *Driver) Shutdown() {
	drv.StopRecv()
	drv.mu.Lock()
	drv.open = false
	drv.mu.Unlock()
}

// DetectChannels reports the single virtual channel.
func (drv *Driver) DetectChannels() ([]can.ChannelInfo, error) {
	return []can.ChannelInfo{{
		Name:        "Virtual Channel 1",
		HWType:      1,
		HWName:      "Virtual",
		HWIndex:     0,
		Serial:      0,
		FDCapable:   true,
		Transceiver: "none",
	}}, nil
}

func (drv *Driver) OpenChannel(info can.ChannelInfo, cfg can.BusConfig) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.open = true
	drv.start = time.Now()
	drv.msg.Printf("virtual channel open, bitrate=%d fd=%v", cfg.Bitrate, cfg.FD)
	return nil
}

func (drv *Driver) CloseChannel() {
	drv.StopRecv()
	drv.mu.Lock()
	drv.open = false
	drv.mu.Unlock()
}

func (drv *Driver) IsOpen() bool {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.open
}

// SetDatabase rebuilds the traffic schedule from db. Only simple
// messages take part: a classic payload of at most eight bytes with
// at least one signal. Passing an empty database reverts to the
// fallback schedule.
func (drv *Driver) SetDatabase(db *dbc.Database) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.plans = buildPlans(db)
	if len(drv.plans) > 0 {
		drv.msg.Printf("schedule covers %d message(s)", len(drv.plans))
	}
}

func buildPlans(db *dbc.Database) []*msgPlan {
	if db.IsEmpty() {
		return nil
	}
	var plans []*msgPlan
	for i := range db.Messages {
		if len(plans) == maxPlanMsgs {
			break
		}
		msg := &db.Messages[i]
		if msg.Length == 0 || msg.Length > 8 || len(msg.Signals) == 0 {
			continue
		}
		plan := &msgPlan{
			msg:    msg,
			period: tickPeriods[len(plans)%len(tickPeriods)],
		}
		for j := range msg.Signals {
			sig := &msg.Signals[j]
			sp := &sigPlan{sig: sig}
			switch {
			case sig.Mux == dbc.MuxSelector:
				sp.kind = sigSelector
			case len(sig.Values) > 0:
				sp.kind = sigValueTable
				for k := range sig.Values {
					sp.keys = append(sp.keys, k)
				}
				sort.Slice(sp.keys, func(a, b int) bool { return sp.keys[a] < sp.keys[b] })
			case sig.Length == 1:
				sp.kind = sigToggle
				sp.sub = toggleTicks / plan.period
				if sp.sub < 1 {
					sp.sub = 1
				}
			case sig.Min < sig.Max:
				sp.kind = sigSine
				sp.center = (sig.Min + sig.Max) / 2
				sp.amp = 0.35 * (sig.Max - sig.Min)
				sp.freq = 0.12 + float64(len(plans))*0.03 + float64(j)*0.015
			default:
				sp.kind = sigConstant
			}
			plan.sigs = append(plan.sigs, sp)
		}
		if sel := msg.Selector(); sel != nil {
			seen := map[int64]bool{}
			for j := range msg.Signals {
				sig := &msg.Signals[j]
				if sig.Mux == dbc.MuxValue && !seen[sig.MuxVal] {
					seen[sig.MuxVal] = true
					plan.selVals = append(plan.selVals, sig.MuxVal)
				}
			}
			sort.Slice(plan.selVals, func(a, b int) bool {
				return plan.selVals[a] < plan.selVals[b]
			})
		}
		plans = append(plans, plan)
	}
	return plans
}

// emit produces the next frame of the plan at elapsed time t.
func (plan *msgPlan) emit(t time.Duration) can.Frame {
	f := can.Frame{
		ID:        plan.msg.ID,
		DLC:       plan.msg.Length,
		Timestamp: uint64(t.Nanoseconds()),
	}
	if plan.msg.Extended {
		f.Flags |= can.Extended
	}
	data := f.Data[:plan.msg.Length]

	n := plan.count
	plan.count++

	var selRaw int64
	if len(plan.selVals) > 0 {
		selRaw = plan.selVals[plan.selIdx%len(plan.selVals)]
		plan.selIdx++
	}

	sec := t.Seconds()
	for _, sp := range plan.sigs {
		sig := sp.sig
		if sig.Mux == dbc.MuxValue && sig.MuxVal != selRaw {
			continue
		}
		switch sp.kind {
		case sigSelector:
			sig.EncodeRaw(selRaw, data)
		case sigValueTable:
			sig.EncodeRaw(sp.keys[sp.idx%len(sp.keys)], data)
			sp.idx++
		case sigToggle:
			if n%uint64(sp.sub) == 0 {
				sp.on = !sp.on
			}
			raw := int64(0)
			if sp.on {
				raw = 1
			}
			sig.EncodeRaw(raw, data)
		case sigSine:
			sig.Encode(sp.center+sp.amp*math.Sin(2*math.Pi*sp.freq*sec), data)
		default:
			sig.Encode(sig.Offset, data)
		}
	}
	return f
}

// emitFallback builds the database-free frame for entry m at tick n.
func emitFallback(m fallbackMsg, n uint64, t time.Duration) can.Frame {
	f := can.Frame{
		ID:        m.id,
		DLC:       m.dlc,
		Timestamp: uint64(t.Nanoseconds()),
	}
	sec := t.Seconds()
	f.Data[0] = byte(n)
	for i := 1; i < int(m.dlc); i++ {
		f.Data[i] = byte(128 + 100*math.Sin(sec*0.7+float64(m.id)+float64(i)))
	}
	return f
}

// Transmit accepts any frame and echoes it back through the receive
// path with the echo flag set.
func (drv *Driver) Transmit(f can.Frame) error {
	drv.mu.Lock()
	if !drv.open {
		drv.mu.Unlock()
		return can.ErrNotOpen
	}
	f.Flags |= can.TxEcho
	f.Timestamp = uint64(time.Since(drv.start).Nanoseconds())
	drv.mu.Unlock()

	drv.push(f)
	return nil
}

// Receive waits for the next generated frame.
func (drv *Driver) Receive(timeout time.Duration) (can.Frame, error) {
	drv.mu.Lock()
	open := drv.open
	drv.mu.Unlock()
	if !open {
		return can.Frame{}, can.ErrNotOpen
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-drv.frames:
		return f, nil
	case <-timer.C:
		return can.Frame{}, can.ErrTimeout
	}
}

// FlushReceiveQueue drops all buffered frames.
func (drv *Driver) FlushReceiveQueue() error {
	for {
		select {
		case <-drv.frames:
		default:
			return nil
		}
	}
}

func (drv *Driver) LastError() string {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.lastErr
}

// StartRecv starts the generator. Every tick it walks the schedule
// and pushes the due frames.
func (drv *Driver) StartRecv() {
	drv.mu.Lock()
	if drv.stop != nil || !drv.open {
		drv.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	drv.stop = stop
	drv.done = done
	start := drv.start
	drv.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(tickPeriod)
		defer ticker.Stop()
		var n uint64
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			t := time.Since(start)
			drv.mu.Lock()
			plans := drv.plans
			drv.mu.Unlock()
			if len(plans) > 0 {
				for _, plan := range plans {
					if n%uint64(plan.period) == 0 {
						drv.push(plan.emit(t))
					}
				}
			} else {
				for _, m := range fallbackSchedule {
					if n%uint64(m.period) == 0 {
						drv.push(emitFallback(m, n, t))
					}
				}
			}
			n++
		}
	}()
}

// StopRecv stops the generator and waits for it to exit.
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

func (drv *Driver) push(f can.Frame) {
	f.Channel = 1
	select {
	case drv.frames <- f:
	default: // consumer stalled, drop rather than block the generator
	}
}
