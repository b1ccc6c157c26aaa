// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-daq starts a TDAQ server publishing bus traffic from
// the synthetic driver, so a TDAQ data-taking setup can consume CAN
// frames like any other data source.
package main // import "github.com/auto-lens/lens/cmd/lens-daq"

import (
	"context"
	"encoding/binary"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/auto-lens/lens/can"
	"github.com/auto-lens/lens/sim"
)

func main() {
	cmd := flags.New()

	dev := source{drv: sim.New()}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/can-frames", dev.frames)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type source struct {
	drv *sim.Driver
	n   int
}

func (dev *source) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (dev *source) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.reset()
}

func (dev *source) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return dev.reset()
}

func (dev *source) reset() error {
	if dev.drv != nil {
		dev.drv.Shutdown()
	}
	dev.drv = sim.New()
	dev.n = 0

	chans, err := dev.drv.DetectChannels()
	if err != nil {
		return err
	}
	return dev.drv.OpenChannel(chans[0], can.DefaultBusConfig())
}

func (dev *source) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	dev.drv.StartRecv()
	return nil
}

func (dev *source) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.drv.StopRecv()
	ctx.Msg.Debugf("received /stop command... -> n=%d", dev.n)
	return nil
}

func (dev *source) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.drv != nil {
		dev.drv.Shutdown()
	}
	return nil
}

func (dev *source) frames(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case f := <-dev.drv.Frames():
		dst.Body = marshal(&f)
		dev.n++
	}
	return nil
}

func (dev *source) run(ctx tdaq.Context) error {
	<-ctx.Ctx.Done()
	return nil
}

// marshal packs a frame into a fixed little-endian wire layout:
// id(u32) flags(u8) channel(u8) dlc(u8) payload-len(u8) ts(u64) payload.
func marshal(f *can.Frame) []byte {
	payload := f.Payload()
	raw := make([]byte, 16+len(payload))
	binary.LittleEndian.PutUint32(raw[0:4], f.ID)
	raw[4] = f.Flags
	raw[5] = f.Channel
	raw[6] = f.DLC
	raw[7] = uint8(len(payload))
	binary.LittleEndian.PutUint64(raw[8:16], f.Timestamp)
	copy(raw[16:], payload)
	return raw
}
