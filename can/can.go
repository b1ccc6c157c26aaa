// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package can holds the bus frame model shared by drivers,
// the session controller and the trace codecs.
package can // import "github.com/auto-lens/lens/can"

// MaxDataLen is the largest payload a CAN-FD frame may carry.
const MaxDataLen = 64

// Frame flag bits.
const (
	Extended uint8 = 1 << iota // 29-bit identifier
	FD                         // CAN-FD frame
	BRS                        // bit-rate switch (FD data phase)
	Remote                     // remote transmission request
	Error                      // error frame
	TxEcho                     // echo of a frame we transmitted
)

// Frame is one raw bus frame. The payload length is always derived
// from DLC, never stored.
type Frame struct {
	ID        uint32 // 11- or 29-bit identifier
	Data      [MaxDataLen]uint8
	DLC       uint8 // data length code, 0-15
	Flags     uint8
	Channel   uint8  // 1-based channel number
	Timestamp uint64 // ns since session start
}

func (f Frame) IsExtended() bool { return f.Flags&Extended != 0 }
func (f Frame) IsFD() bool       { return f.Flags&FD != 0 }
func (f Frame) IsBRS() bool      { return f.Flags&BRS != 0 }
func (f Frame) IsRemote() bool   { return f.Flags&Remote != 0 }
func (f Frame) IsError() bool    { return f.Flags&Error != 0 }
func (f Frame) IsTxEcho() bool   { return f.Flags&TxEcho != 0 }

// PayloadLen returns the payload byte count encoded by the frame DLC.
func (f Frame) PayloadLen() int { return LenOfDLC(f.DLC) }

// Payload returns a view of the payload bytes.
func (f *Frame) Payload() []byte { return f.Data[:f.PayloadLen()] }

// dlc2len is the classic/FD data length code table.
var dlc2len = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// LenOfDLC returns the payload byte count for a data length code.
// Codes above 15 saturate at 64 bytes.
func LenOfDLC(dlc uint8) int {
	if dlc > 15 {
		dlc = 15
	}
	return dlc2len[dlc]
}

// DLCOfLen returns the smallest data length code whose payload
// length is at least n bytes.
func DLCOfLen(n int) uint8 {
	for dlc, l := range dlc2len {
		if l >= n {
			return uint8(dlc)
		}
	}
	return 15
}

// Key packs the frame identity fields into a 64-bit value.
// Two frames with equal keys are the same row for in-place
// trace display purposes, regardless of payload.
func (f Frame) Key() uint64 {
	id := uint64(f.ID)
	if !f.IsExtended() {
		id &= 0x7FF
	}
	key := id
	key |= uint64(f.Channel) << 29
	if f.IsExtended() {
		key |= 1 << 37
	}
	if f.IsRemote() {
		key |= 1 << 38
	}
	if f.IsError() {
		key |= 1 << 39
	}
	if f.IsFD() {
		key |= 1 << 40
	}
	if f.IsTxEcho() {
		key |= 1 << 41
	}
	return key
}

// ChannelInfo is an immutable hardware identity snapshot
// from a channel detection call.
type ChannelInfo struct {
	Name        string // display name, e.g. "VN1630A Channel 1"
	HWType      int    // vendor hardware type code
	HWName      string // vendor hardware family name
	HWIndex     int    // index within the driver configuration
	Serial      uint32
	FDCapable   bool
	Occupied    bool // bus already owned by another application
	Transceiver string
}

// BusConfig is supplied when opening a channel and never
// mutated afterwards.
type BusConfig struct {
	Bitrate     uint32 // arbitration bitrate, bit/s
	FD          bool
	DataBitrate uint32 // FD data-phase bitrate, bit/s
	ListenOnly  bool
}

// DefaultBusConfig returns the configuration used when a channel
// has no user-supplied settings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Bitrate:     500000,
		DataBitrate: 2000000,
		ListenOnly:  true,
	}
}
