// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session drives a measurement: it owns the bus driver, the
// trace store and the signal databases, and moves between the idle,
// ready, connected and measuring states.
//
// Hardware driver initialization runs under a watchdog. A vendor
// stack that hangs inside native code is abandoned rather than
// joined, and the session continues on the synthetic driver so the
// application stays responsive.
package session // import "github.com/auto-lens/lens/session"

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/dbc"
	"github.com/auto-lens/lens/sim"
	"github.com/auto-lens/lens/trace"
	"github.com/auto-lens/lens/vxl"
)

// State is the lifecycle state of a session.
type State uint8

const (
	Idle State = iota
	Initializing
	Ready      // driver up, channels detected
	Connected  // channel open
	Measuring  // frames flowing into the store
	Paused     // intake accumulates, store frozen
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Connected:
		return "connected"
	case Measuring:
		return "measuring"
	case Paused:
		return "paused"
	}
	return "state-" + strconv.Itoa(int(s))
}

// EventKind classifies session events.
type EventKind uint8

const (
	EventMessage EventKind = iota
	EventError
	EventDisconnected
)

// Event is an asynchronous session notification.
type Event struct {
	Kind EventKind
	Msg  string
}

const (
	initTimeout = 3 * time.Second
	flushPeriod = 50 * time.Millisecond
	ratePeriod  = 1 * time.Second
)

// Session is the measurement controller. All methods are safe for
// concurrent use.
type Session struct {
	msg   *log.Logger
	store *trace.Store

	newHW  func() can.Driver
	initTO time.Duration

	mu        sync.Mutex
	state     State
	drv       can.Driver
	simDrv    *sim.Driver // non-nil when running on the synthetic driver
	graveyard []can.Driver
	channels  []can.ChannelInfo
	current   int
	chanCfg   map[int]ChannelConfig
	db        *dbc.Database
	chanDB    map[uint8]*dbc.Database

	pending []can.Frame
	rxCount uint64
	rate    float64

	cancel context.CancelFunc
	grp    *errgroup.Group

	events chan Event
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the message logger.
func WithLogger(msg *log.Logger) Option {
	return func(s *Session) { s.msg = msg }
}

// WithStore sets the trace store. A default bounded store is created
// otherwise.
func WithStore(store *trace.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithHardware overrides the hardware driver factory.
func WithHardware(f func() can.Driver) Option {
	return func(s *Session) { s.newHW = f }
}

// New creates an idle session.
func New(opts ...Option) *Session {
	s := &Session{
		newHW:   func() can.Driver { return vxl.New() },
		initTO:  initTimeout,
		chanCfg: make(map[int]ChannelConfig),
		chanDB:  make(map[uint8]*dbc.Database),
		events:  make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.msg == nil {
		s.msg = log.New(os.Stdout, "session: ", 0)
	}
	if s.store == nil {
		s.store = trace.NewStore()
	}
	return s
}

func (s *Session) Store() *trace.Store { return s.store }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Simulated reports whether the session runs on the synthetic driver.
func (s *Session) Simulated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simDrv != nil
}

// Rate returns the frame rate of the last full second, in frames per
// second.
func (s *Session) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Events returns the asynchronous notification stream.
func (s *Session) Events() <-chan Event { return s.events }

// Channels returns the channels found by the last detection.
func (s *Session) Channels() []can.ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]can.ChannelInfo, len(s.channels))
	copy(out, s.channels)
	return out
}

// ChannelConfig is the per-channel user configuration. An enabled
// channel is preferred by the no-argument Connect; unset bitrates
// fall back to the defaults.
type ChannelConfig struct {
	Enabled     bool
	Alias       string
	Bitrate     uint32
	FD          bool
	DataBitrate uint32
	TxEnabled   bool // open with normal output instead of listen-only
}

// busConfig derives the driver bus parameters, filling in defaults
// for unset bitrates.
func (cfg ChannelConfig) busConfig() can.BusConfig {
	bus := can.BusConfig{
		Bitrate:     cfg.Bitrate,
		FD:          cfg.FD,
		DataBitrate: cfg.DataBitrate,
		ListenOnly:  !cfg.TxEnabled,
	}
	def := can.DefaultBusConfig()
	if bus.Bitrate == 0 {
		bus.Bitrate = def.Bitrate
	}
	if bus.DataBitrate == 0 {
		bus.DataBitrate = def.DataBitrate
	}
	return bus
}

// SetChannelConfig sets the configuration used when channel ch is
// connected.
func (s *Session) SetChannelConfig(ch int, cfg ChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chanCfg[ch] = cfg
}

// Initialize brings the session up. The hardware driver gets
// initTimeout to come alive; a driver that does not answer in time is
// poisoned and left behind, never joined, and the session falls back
// to the synthetic driver.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return xerrors.Errorf("session: not idle (state=%v)", s.state)
	}
	s.state = Initializing
	s.mu.Unlock()

	hw := s.newHW()
	var abandoned atomic.Bool
	type initResult struct {
		chans []can.ChannelInfo
		err   error
	}
	// Initialize and DetectChannels both cross into native code and
	// both race the watchdog; a stack wedged in either one is
	// abandoned, never joined.
	resc := make(chan initResult, 1)
	go func() {
		var res initResult
		res.err = hw.Initialize()
		if res.err == nil {
			res.chans, res.err = hw.DetectChannels()
		}
		if abandoned.Load() {
			// the watchdog gave up on this driver already; it stays
			// in the graveyard and must not be shut down, the native
			// stack may be wedged
			return
		}
		resc <- res
	}()

	timer := time.NewTimer(s.initTO)
	defer timer.Stop()

	var (
		drv   can.Driver
		chans []can.ChannelInfo
	)
	select {
	case res := <-resc:
		if res.err == nil && hw.IsAvailable() {
			drv = hw
			chans = res.chans
		} else {
			if res.err != nil {
				s.msg.Printf("hardware driver unavailable: %v", res.err)
			}
			hw.Shutdown()
		}
	case <-timer.C:
		abandoned.Store(true)
		s.msg.Printf("hardware driver did not come up within %v, abandoning it", s.initTO)
		s.mu.Lock()
		s.graveyard = append(s.graveyard, hw)
		s.mu.Unlock()
	case <-ctx.Done():
		abandoned.Store(true)
		s.mu.Lock()
		s.graveyard = append(s.graveyard, hw)
		s.state = Idle
		s.mu.Unlock()
		return ctx.Err()
	}

	var simDrv *sim.Driver
	if drv == nil {
		simDrv = sim.New(sim.WithLogger(s.msg))
		drv = simDrv
		s.msg.Printf("falling back to the synthetic driver")
		var err error
		chans, err = drv.DetectChannels()
		if err != nil {
			s.mu.Lock()
			s.state = Idle
			s.mu.Unlock()
			return xerrors.Errorf("session: could not detect channels: %w", err)
		}
	}

	s.mu.Lock()
	s.drv = drv
	s.simDrv = simDrv
	s.channels = chans
	s.state = Ready
	s.mu.Unlock()

	s.msg.Printf("ready: driver=%q channels=%d", drv.Name(), len(chans))
	return nil
}

// Connect opens the first channel whose configuration is enabled, or
// the first detected channel with default parameters when none is.
func (s *Session) Connect() error {
	s.mu.Lock()
	ch := 0
	for i := range s.channels {
		if cfg, ok := s.chanCfg[i]; ok && cfg.Enabled {
			ch = i
			break
		}
	}
	s.mu.Unlock()
	return s.ConnectChannel(ch)
}

// ConnectChannel opens channel ch with its configured bus parameters,
// listen-only unless the configuration enables transmission.
func (s *Session) ConnectChannel(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return xerrors.Errorf("session: cannot connect in state %v", s.state)
	}
	if ch < 0 || ch >= len(s.channels) {
		return xerrors.Errorf("session: channel %d out of range", ch)
	}
	cfg := can.DefaultBusConfig()
	name := s.channels[ch].Name
	if c, ok := s.chanCfg[ch]; ok {
		cfg = c.busConfig()
		if c.Alias != "" {
			name = c.Alias
		}
	}
	if err := s.drv.OpenChannel(s.channels[ch], cfg); err != nil {
		return xerrors.Errorf("session: could not open channel %d: %w", ch, err)
	}
	s.current = ch
	s.state = Connected
	if s.simDrv != nil {
		s.simDrv.SetDatabase(s.effectiveDBLocked(uint8(ch + 1)))
	}
	s.msg.Printf("connected to %q", name)
	return nil
}

// Disconnect closes the channel, stopping a running measurement
// first.
func (s *Session) Disconnect() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return
	}
	s.drv.CloseChannel()
	s.state = Ready
	s.msg.Printf("disconnected")
}

// Start begins a measurement. Frames accumulate in an intake buffer
// that is flushed into the store as one batch every flushPeriod.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return xerrors.Errorf("session: cannot start in state %v", s.state)
	}
	drv := s.drv
	s.pending = s.pending[:0]
	s.rxCount = 0
	s.rate = 0
	s.state = Measuring

	ctx, cancel := context.WithCancel(context.Background())
	grp, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.grp = grp
	s.mu.Unlock()

	drv.FlushReceiveQueue()
	drv.StartRecv()

	grp.Go(func() error { return s.pump(ctx, drv) })
	grp.Go(func() error { return s.ticks(ctx) })

	s.msg.Printf("measurement started")
	return nil
}

// pump moves frames and errors from the driver into the session.
func (s *Session) pump(ctx context.Context, drv can.Driver) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-drv.Frames():
			s.mu.Lock()
			s.pending = append(s.pending, f)
			s.rxCount++
			s.mu.Unlock()
		case err := <-drv.Errs():
			s.driverError(err)
		}
	}
}

// ticks owns the flush and rate timers.
func (s *Session) ticks(ctx context.Context) error {
	flush := time.NewTicker(flushPeriod)
	defer flush.Stop()
	rate := time.NewTicker(ratePeriod)
	defer rate.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-flush.C:
			s.flush(false)
		case <-rate.C:
			s.mu.Lock()
			s.rate = float64(s.rxCount) / ratePeriod.Seconds()
			s.rxCount = 0
			s.mu.Unlock()
		}
	}
}

// flush drains the intake buffer into the store as one batch. While
// paused the buffer keeps accumulating unless force is set.
func (s *Session) flush(force bool) {
	s.mu.Lock()
	if s.state == Paused && !force {
		s.mu.Unlock()
		return
	}
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	frames := make([]can.Frame, len(s.pending))
	copy(frames, s.pending)
	s.pending = s.pending[:0]
	db := s.effectiveDBLocked(uint8(s.current + 1))
	s.mu.Unlock()

	entries := trace.BuildEntries(frames, db)
	s.mu.Lock()
	s.store.Add(entries)
	s.mu.Unlock()
}

// Rows returns the current store row count.
func (s *Session) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Clear empties the store and drops whatever sits in the intake
// buffer.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
	s.store.Clear()
}

// driverError forwards a driver error and auto-disconnects when the
// status says the hardware is gone.
func (s *Session) driverError(err error) {
	s.emit(Event{Kind: EventError, Msg: err.Error()})
	var serr *vxl.StatusError
	if errors.As(err, &serr) && serr.Status.Fatal() {
		s.msg.Printf("fatal driver error (%v), disconnecting", serr.Status)
		go s.Disconnect()
		s.emit(Event{Kind: EventDisconnected, Msg: serr.Status.String()})
	}
}

// Stop ends the measurement. Whatever still sits in the intake
// buffer is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != Measuring && s.state != Paused {
		s.mu.Unlock()
		return
	}
	cancel, grp := s.cancel, s.grp
	drv := s.drv
	s.cancel, s.grp = nil, nil
	s.pending = s.pending[:0]
	s.rate = 0
	s.state = Connected
	s.mu.Unlock()

	cancel()
	grp.Wait()
	drv.StopRecv()
	s.msg.Printf("measurement stopped")
}

// Pause freezes the store. Intake keeps accumulating so nothing on
// the bus is lost.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Measuring {
		return xerrors.Errorf("session: cannot pause in state %v", s.state)
	}
	s.state = Paused
	s.msg.Printf("measurement paused")
	return nil
}

// Resume unfreezes the store and flushes the backlog accumulated
// while paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != Paused {
		s.mu.Unlock()
		return xerrors.Errorf("session: cannot resume in state %v", s.state)
	}
	s.state = Measuring
	s.mu.Unlock()

	s.flush(true)
	s.msg.Printf("measurement resumed")
	return nil
}

// Transmit sends a frame built from hexadecimal byte tokens
// ("12 AB 03"). A classic frame carries at most eight bytes; with fd
// set the frame goes out as CAN FD with up to 64 bytes and the
// smallest DLC covering the payload.
func (s *Session) Transmit(id uint32, extended, fd bool, payload string) error {
	s.mu.Lock()
	state := s.state
	drv := s.drv
	s.mu.Unlock()
	if state != Connected && state != Measuring && state != Paused {
		return xerrors.Errorf("session: cannot transmit in state %v", state)
	}

	f := can.Frame{ID: id & 0x1FFFFFFF}
	if extended {
		f.Flags |= can.Extended
	}
	max := 8
	if fd {
		f.Flags |= can.FD
		max = 64
	}
	toks := strings.Fields(payload)
	if len(toks) > max {
		toks = toks[:max]
	}
	for i, tok := range toks {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return xerrors.Errorf("session: bad payload byte %q: %w", tok, err)
		}
		f.Data[i] = uint8(v)
	}
	if fd {
		f.DLC = can.DLCOfLen(len(toks))
	} else {
		f.DLC = uint8(len(toks))
	}

	if err := drv.Transmit(f); err != nil {
		return xerrors.Errorf("session: could not transmit: %w", err)
	}
	return nil
}

// SetDatabase replaces the global signal database.
func (s *Session) SetDatabase(db *dbc.Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	s.pushDatabaseLocked()
}

// SetChannelDatabase assigns a database to one channel. Its
// definitions take precedence over the global database for frames of
// that channel.
func (s *Session) SetChannelDatabase(ch uint8, db *dbc.Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db == nil {
		delete(s.chanDB, ch)
	} else {
		s.chanDB[ch] = db
	}
	s.pushDatabaseLocked()
}

func (s *Session) pushDatabaseLocked() {
	if s.simDrv != nil {
		s.simDrv.SetDatabase(s.effectiveDBLocked(uint8(s.current + 1)))
	}
}

// effectiveDBLocked merges the global database with the channel
// override; the override wins on duplicate ids.
func (s *Session) effectiveDBLocked(ch uint8) *dbc.Database {
	over := s.chanDB[ch]
	if over == nil {
		return s.db
	}
	return s.db.Merge(over)
}

// Import loads a trace file into the store. The format follows the
// file extension: .asc and .blf are supported. It returns the number
// of frames loaded.
func (s *Session) Import(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, xerrors.Errorf("session: could not open trace: %w", err)
	}
	defer f.Close()

	var frames []can.Frame
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		dec := trace.NewASCDecoder(f)
		for {
			var frame can.Frame
			err := dec.Decode(&frame)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return 0, xerrors.Errorf("session: could not import %q: %w", path, err)
			}
			frames = append(frames, frame)
		}
	case ".blf":
		dec, err := trace.NewBLFDecoder(f)
		if err != nil {
			return 0, xerrors.Errorf("session: could not import %q: %w", path, err)
		}
		for {
			var frame can.Frame
			err := dec.Decode(&frame)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return 0, xerrors.Errorf("session: could not import %q: %w", path, err)
			}
			frames = append(frames, frame)
		}
	default:
		return 0, xerrors.Errorf("session: unsupported trace format %q", filepath.Ext(path))
	}

	s.mu.Lock()
	db := s.effectiveDBLocked(uint8(s.current + 1))
	s.mu.Unlock()
	entries := trace.BuildEntries(frames, db)
	s.mu.Lock()
	s.store.Add(entries)
	s.mu.Unlock()
	s.msg.Printf("imported %d frame(s) from %q", len(frames), path)
	return len(frames), nil
}

// Save writes the store to path. The format follows the file
// extension: .asc, .blf, or CSV for anything else.
func (s *Session) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("session: could not create trace: %w", err)
	}
	defer f.Close()

	s.mu.Lock()
	entries := append([]trace.Entry(nil), s.store.Entries()...)
	s.mu.Unlock()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		enc := trace.NewASCEncoder(f)
		for i := range entries {
			if err := enc.Encode(&entries[i].Frame); err != nil {
				return xerrors.Errorf("session: could not save %q: %w", path, err)
			}
		}
		if err := enc.Close(); err != nil {
			return xerrors.Errorf("session: could not save %q: %w", path, err)
		}
	case ".blf":
		enc, err := trace.NewBLFEncoder(f)
		if err != nil {
			return xerrors.Errorf("session: could not save %q: %w", path, err)
		}
		for i := range entries {
			if err := enc.Encode(&entries[i].Frame); err != nil {
				return xerrors.Errorf("session: could not save %q: %w", path, err)
			}
		}
		if err := enc.Close(); err != nil {
			return xerrors.Errorf("session: could not save %q: %w", path, err)
		}
	default:
		if err := trace.ExportCSV(f, entries); err != nil {
			return xerrors.Errorf("session: could not save %q: %w", path, err)
		}
	}

	if err := f.Close(); err != nil {
		return xerrors.Errorf("session: could not save %q: %w", path, err)
	}
	s.msg.Printf("saved %d row(s) to %q", len(entries), path)
	return nil
}

// Shutdown tears the session down. Graveyard drivers are left alone.
func (s *Session) Shutdown() {
	s.Disconnect()
	s.mu.Lock()
	drv := s.drv
	s.drv = nil
	s.simDrv = nil
	s.state = Idle
	s.mu.Unlock()
	if drv != nil {
		drv.Shutdown()
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
