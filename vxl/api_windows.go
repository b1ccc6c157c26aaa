// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package vxl

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

// dllNames is the probe order for the vendor library.
var dllNames = []string{"vxlapi64.dll", "vxlapi.dll"}

// native event tags and flag bits.
const (
	tagReceiveMsg  = 1
	tagTransmitMsg = 10

	msgFlagErrorFrame  = 0x01
	msgFlagRemoteFrame = 0x10
	msgFlagTxCompleted = 0x40

	canEvTagRxOK  = 0x0400
	canEvTagTxOK  = 0x0404
	canEvTagTxMsg = 0x0440

	rxMsgFlagEDL = 0x01
	rxMsgFlagBRS = 0x02
	rxMsgFlagRTR = 0x10
	rxMsgFlagEF  = 0x200

	txMsgFlagEDL = 0x0001
	txMsgFlagBRS = 0x0002
	txMsgFlagRTR = 0x0010
)

const maxConfigChannels = 64

// Native struct layouts mirror the vendor header with 8-byte packing.

type xlBusParams struct {
	BusType uint32
	Data    [28]byte
}

type xlChannelConfig struct {
	Name                   [32]byte
	HwType                 uint8
	HwIndex                uint8
	HwChannel              uint8
	_                      uint8
	TransceiverType        uint16
	TransceiverState       uint16
	ConfigError            uint16
	ChannelIndex           uint8
	_                      [5]byte
	ChannelMask            uint64
	ChannelCapabilities    uint32
	ChannelBusCapabilities uint32
	IsOnBus                uint8
	_                      [3]byte
	ConnectedBusType       uint32
	BusParams              xlBusParams
	DoNotUse               uint32
	DriverVersion          uint32
	InterfaceVersion       uint32
	RawData                [10]uint32
	SerialNumber           uint32
	ArticleNumber          uint32
	TransceiverName        [32]byte
	SpecialCabFlags        uint32
	DominantTimeout        uint32
	DominantRecessiveDelay uint8
	RecessiveDominantDelay uint8
	ConnectionInfo         uint8
	AvailableTimestamps    uint8
	MinimalSupplyVoltage   uint16
	MaximalSupplyVoltage   uint16
	MaximalBaudrate        uint32
	FpgaCoreCapabilities   uint8
	SpecialDeviceStatus    uint8
	ChannelBusActiveCaps   uint16
	BreakOffset            uint16
	DelimiterOffset        uint16
	Reserved               [3]uint32
}

type xlDriverConfig struct {
	DLLVersion   uint32
	ChannelCount uint32
	Reserved     [10]uint32
	Channel      [maxConfigChannels]xlChannelConfig
}

type xlCanMsg struct {
	ID    uint32
	Flags uint16
	DLC   uint16
	Res1  uint64
	Data  [8]byte
	Res2  uint64
}

type xlEvent struct {
	Tag        uint8
	ChanIndex  uint8
	TransID    uint16
	PortHandle uint16
	Flags      uint8
	_          uint8
	TimeStamp  uint64
	TagData    xlCanMsg
}

type xlCanTxMsg struct {
	CanID    uint32
	MsgFlags uint32
	DLC      uint8
	_        [7]byte
	Data     [64]byte
}

type xlCanTxEvent struct {
	Tag          uint16
	TransID      uint16
	ChannelIndex uint8
	_            [3]byte
	TagData      xlCanTxMsg
}

type xlCanRxMsg struct {
	CanID       uint32
	MsgFlags    uint32
	CRC         uint32
	_           [12]byte
	TotalBitCnt uint16
	DLC         uint8
	_           [5]byte
	Data        [64]byte
}

type xlCanRxEvent struct {
	Size         uint32
	Tag          uint16
	ChannelIndex uint16
	_            uint32
	UserHandle   uint32
	FlagsChip    uint16
	_            uint16
	_            uint64
	TimeStamp    uint64
	TagData      xlCanRxMsg
}

type xlCanFdConf struct {
	ArbitrationBitRate uint32
	SjwAbr             uint32
	Tseg1Abr           uint32
	Tseg2Abr           uint32
	DataBitRate        uint32
	SjwDbr             uint32
	Tseg1Dbr           uint32
	Tseg2Dbr           uint32
	Reserved           uint8
	Options            uint8
	Reserved1          [2]uint8
	Reserved2          uint32
}

// api is the resolved vendor library. Mandatory entry points are
// always non-nil after loadAPI; optional ones feed the capability
// set.
type api struct {
	dll *windows.DLL

	// mandatory
	xlOpenDriver           *windows.Proc
	xlCloseDriver          *windows.Proc
	xlGetDriverConfig      *windows.Proc
	xlOpenPort             *windows.Proc
	xlClosePort            *windows.Proc
	xlActivateChannel      *windows.Proc
	xlDeactivateChannel    *windows.Proc
	xlCanSetChannelBitrate *windows.Proc
	xlCanSetChannelOutput  *windows.Proc
	xlSetNotification      *windows.Proc
	xlFlushReceiveQueue    *windows.Proc
	xlCanTransmit          *windows.Proc
	xlReceive              *windows.Proc

	// optional
	xlGetChannelMask        *windows.Proc
	xlCanSetChannelMode     *windows.Proc
	xlCanFdSetConfiguration *windows.Proc
	xlCanTransmitEx         *windows.Proc
	xlCanReceive            *windows.Proc
	xlGetErrorString        *windows.Proc
}

func loadAPI() (*api, error) {
	var (
		dll *windows.DLL
		err error
	)
	for _, name := range dllNames {
		dll, err = windows.LoadDLL(name)
		if err == nil {
			break
		}
		dll = nil
	}
	if dll == nil {
		return nil, xerrors.Errorf("could not load %v: %w", dllNames, err)
	}

	a := &api{dll: dll}
	mandatory := []struct {
		name string
		proc **windows.Proc
	}{
		{"xlOpenDriver", &a.xlOpenDriver},
		{"xlCloseDriver", &a.xlCloseDriver},
		{"xlGetDriverConfig", &a.xlGetDriverConfig},
		{"xlOpenPort", &a.xlOpenPort},
		{"xlClosePort", &a.xlClosePort},
		{"xlActivateChannel", &a.xlActivateChannel},
		{"xlDeactivateChannel", &a.xlDeactivateChannel},
		{"xlCanSetChannelBitrate", &a.xlCanSetChannelBitrate},
		{"xlCanSetChannelOutput", &a.xlCanSetChannelOutput},
		{"xlSetNotification", &a.xlSetNotification},
		{"xlFlushReceiveQueue", &a.xlFlushReceiveQueue},
		{"xlCanTransmit", &a.xlCanTransmit},
		{"xlReceive", &a.xlReceive},
	}
	for _, sym := range mandatory {
		proc, err := dll.FindProc(sym.name)
		if err != nil {
			dll.Release()
			return nil, xerrors.Errorf("missing entry point %s: %w", sym.name, err)
		}
		*sym.proc = proc
	}

	optional := []struct {
		name string
		proc **windows.Proc
	}{
		{"xlGetChannelMask", &a.xlGetChannelMask},
		{"xlCanSetChannelMode", &a.xlCanSetChannelMode},
		{"xlCanFdSetConfiguration", &a.xlCanFdSetConfiguration},
		{"xlCanTransmitEx", &a.xlCanTransmitEx},
		{"xlCanReceive", &a.xlCanReceive},
		{"xlGetErrorString", &a.xlGetErrorString},
	}
	for _, sym := range optional {
		if proc, err := dll.FindProc(sym.name); err == nil {
			*sym.proc = proc
		}
	}
	return a, nil
}

func (a *api) unload() {
	if a.dll != nil {
		a.dll.Release()
		a.dll = nil
	}
}

func (a *api) capabilities() Caps {
	return Caps{
		ChannelMask: a.xlGetChannelMask != nil,
		ChannelMode: a.xlCanSetChannelMode != nil,
		FDConfig:    a.xlCanFdSetConfiguration != nil,
		FDTransmit:  a.xlCanTransmitEx != nil,
		FDReceive:   a.xlCanReceive != nil,
		ErrorString: a.xlGetErrorString != nil,
	}
}

// status converts a native call result into a Status.
func status(r1 uintptr, _ uintptr, _ error) Status {
	return Status(int16(uint16(r1)))
}

func (a *api) openDriver() Status  { return status(a.xlOpenDriver.Call()) }
func (a *api) closeDriver() Status { return status(a.xlCloseDriver.Call()) }

func (a *api) config() (driverConfig, Status) {
	var native xlDriverConfig
	st := status(a.xlGetDriverConfig.Call(uintptr(unsafe.Pointer(&native))))
	if st != StatusOK {
		return driverConfig{}, st
	}
	cfg := driverConfig{dllVersion: native.DLLVersion}
	n := int(native.ChannelCount)
	if n > maxConfigChannels {
		n = maxConfigChannels
	}
	for i := 0; i < n; i++ {
		ch := &native.Channel[i]
		cfg.channels = append(cfg.channels, channelConfig{
			name:         cString(ch.Name[:]),
			hwType:       int(ch.HwType),
			hwIndex:      int(ch.HwIndex),
			hwChannel:    int(ch.HwChannel),
			channelIndex: int(ch.ChannelIndex),
			channelMask:  ch.ChannelMask,
			serial:       ch.SerialNumber,
			caps:         ch.ChannelCapabilities,
			busCaps:      ch.ChannelBusCapabilities,
			isOnBus:      ch.IsOnBus != 0,
			transceiver:  cString(ch.TransceiverName[:]),
		})
	}
	return cfg, StatusOK
}

func (a *api) openPort(app string, mask uint64, rxSize, ifVer uint32) (int64, uint64, Status) {
	name, err := windows.BytePtrFromString(app)
	if err != nil {
		return invalidPort, 0, StatusWrongParameter
	}
	var (
		port int32
		perm = mask
	)
	st := status(a.xlOpenPort.Call(
		uintptr(unsafe.Pointer(&port)),
		uintptr(unsafe.Pointer(name)),
		uintptr(mask),
		uintptr(unsafe.Pointer(&perm)),
		uintptr(rxSize),
		uintptr(ifVer),
		busTypeCAN,
	))
	if st != StatusOK {
		return invalidPort, 0, st
	}
	return int64(port), perm, StatusOK
}

func (a *api) closePort(port int64) Status {
	return status(a.xlClosePort.Call(uintptr(int32(port))))
}

func (a *api) activateChannel(port int64, mask uint64) Status {
	return status(a.xlActivateChannel.Call(uintptr(int32(port)), uintptr(mask), busTypeCAN, activateResetClock))
}

func (a *api) deactivateChannel(port int64, mask uint64) Status {
	return status(a.xlDeactivateChannel.Call(uintptr(int32(port)), uintptr(mask)))
}

func (a *api) setChannelBitrate(port int64, mask uint64, bitrate uint32) Status {
	return status(a.xlCanSetChannelBitrate.Call(uintptr(int32(port)), uintptr(mask), uintptr(bitrate)))
}

func (a *api) setChannelOutput(port int64, mask uint64, mode int32) Status {
	return status(a.xlCanSetChannelOutput.Call(uintptr(int32(port)), uintptr(mask), uintptr(mode)))
}

// channelMask asks the library for the access mask of a hardware
// channel. The call returns the mask itself, not a status; zero
// means the channel is unknown to the library.
func (a *api) channelMask(hwType, hwIndex, hwChannel int) uint64 {
	r1, _, _ := a.xlGetChannelMask.Call(
		uintptr(int32(hwType)),
		uintptr(int32(hwIndex)),
		uintptr(int32(hwChannel)),
	)
	return uint64(r1)
}

func (a *api) setChannelMode(port int64, mask uint64, tx, txrq int32) Status {
	return status(a.xlCanSetChannelMode.Call(
		uintptr(int32(port)),
		uintptr(mask),
		uintptr(tx),
		uintptr(txrq),
	))
}

func (a *api) setNotification(port int64) (uintptr, Status) {
	var h windows.Handle
	st := status(a.xlSetNotification.Call(uintptr(int32(port)), uintptr(unsafe.Pointer(&h)), 1))
	if st != StatusOK {
		return 0, st
	}
	return uintptr(h), StatusOK
}

func (a *api) flushReceiveQueue(port int64) Status {
	return status(a.xlFlushReceiveQueue.Call(uintptr(int32(port))))
}

func (a *api) fdSetConfiguration(port int64, mask uint64, arbBitrate, dataBitrate uint32) Status {
	conf := xlCanFdConf{
		ArbitrationBitRate: arbBitrate,
		SjwAbr:             2,
		Tseg1Abr:           6,
		Tseg2Abr:           3,
		DataBitRate:        dataBitrate,
		SjwDbr:             2,
		Tseg1Dbr:           6,
		Tseg2Dbr:           3,
	}
	return status(a.xlCanFdSetConfiguration.Call(uintptr(int32(port)), uintptr(mask), uintptr(unsafe.Pointer(&conf))))
}

func (a *api) transmit(port int64, mask uint64, f *can.Frame) Status {
	var evt xlEvent
	evt.Tag = tagTransmitMsg
	evt.TagData.ID = f.ID & 0x1FFFFFFF
	if f.IsExtended() {
		evt.TagData.ID |= extMsgID
	}
	if f.IsRemote() {
		evt.TagData.Flags |= msgFlagRemoteFrame
	}
	dlc := f.DLC
	if dlc > 8 {
		dlc = 8
	}
	evt.TagData.DLC = uint16(dlc)
	copy(evt.TagData.Data[:], f.Data[:dlc])

	count := uint32(1)
	return status(a.xlCanTransmit.Call(
		uintptr(int32(port)),
		uintptr(mask),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&evt)),
	))
}

func (a *api) transmitEx(port int64, mask uint64, f *can.Frame) (uint32, Status) {
	var evt xlCanTxEvent
	evt.Tag = canEvTagTxMsg
	msg := &evt.TagData
	msg.CanID = f.ID & 0x1FFFFFFF
	if f.IsExtended() {
		msg.CanID |= extMsgID
	}
	msg.MsgFlags = txMsgFlagEDL
	if f.IsBRS() {
		msg.MsgFlags |= txMsgFlagBRS
	}
	if f.IsRemote() {
		msg.MsgFlags |= txMsgFlagRTR
	}
	dlc := f.DLC
	if dlc > 15 {
		dlc = 15
	}
	msg.DLC = dlc
	copy(msg.Data[:], f.Payload())

	var (
		count = uint32(1)
		sent  uint32
	)
	st := status(a.xlCanTransmitEx.Call(
		uintptr(int32(port)),
		uintptr(mask),
		uintptr(count),
		uintptr(unsafe.Pointer(&sent)),
		uintptr(unsafe.Pointer(&evt)),
	))
	return sent, st
}

// receive drains one classic event. Events that do not carry a CAN
// message report as an empty queue so the worker keeps polling.
func (a *api) receive(port int64) (can.Frame, Status) {
	var (
		count = uint32(1)
		evt   xlEvent
	)
	st := status(a.xlReceive.Call(
		uintptr(int32(port)),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&evt)),
	))
	if st != StatusOK {
		return can.Frame{}, st
	}
	if count == 0 {
		return can.Frame{}, StatusQueueEmpty
	}
	if evt.Tag != tagReceiveMsg && evt.Tag != tagTransmitMsg {
		return can.Frame{}, StatusQueueEmpty
	}

	msg := &evt.TagData
	f := can.Frame{
		ID:        msg.ID & 0x1FFFFFFF,
		Channel:   evt.ChanIndex + 1,
		Timestamp: evt.TimeStamp,
	}
	if msg.ID&extMsgID != 0 {
		f.Flags |= can.Extended
	}
	if msg.Flags&msgFlagErrorFrame != 0 {
		f.Flags |= can.Error
	}
	if msg.Flags&msgFlagRemoteFrame != 0 {
		f.Flags |= can.Remote
	}
	if evt.Tag == tagTransmitMsg || msg.Flags&msgFlagTxCompleted != 0 {
		f.Flags |= can.TxEcho
	}
	dlc := msg.DLC
	if dlc > 8 {
		dlc = 8
	}
	f.DLC = uint8(dlc)
	copy(f.Data[:], msg.Data[:dlc])
	return f, StatusOK
}

// receiveFD drains one FD event from the extended receive path.
func (a *api) receiveFD(port int64) (can.Frame, Status) {
	var evt xlCanRxEvent
	st := status(a.xlCanReceive.Call(uintptr(int32(port)), uintptr(unsafe.Pointer(&evt))))
	if st != StatusOK {
		return can.Frame{}, st
	}
	if evt.Tag != canEvTagRxOK && evt.Tag != canEvTagTxOK {
		return can.Frame{}, StatusQueueEmpty
	}

	msg := &evt.TagData
	f := can.Frame{
		ID:        msg.CanID & 0x1FFFFFFF,
		Channel:   uint8(evt.ChannelIndex) + 1,
		Timestamp: evt.TimeStamp,
	}
	if msg.CanID&extMsgID != 0 {
		f.Flags |= can.Extended
	}
	if msg.MsgFlags&rxMsgFlagEDL != 0 {
		f.Flags |= can.FD
	}
	if msg.MsgFlags&rxMsgFlagBRS != 0 {
		f.Flags |= can.BRS
	}
	if msg.MsgFlags&rxMsgFlagRTR != 0 {
		f.Flags |= can.Remote
	}
	if msg.MsgFlags&rxMsgFlagEF != 0 {
		f.Flags |= can.Error
	}
	if evt.Tag == canEvTagTxOK {
		f.Flags |= can.TxEcho
	}
	dlc := msg.DLC
	if dlc > 15 {
		dlc = 15
	}
	f.DLC = dlc
	copy(f.Data[:], msg.Data[:can.LenOfDLC(f.DLC)])
	return f, StatusOK
}

func (a *api) errorString(st Status) string {
	if a.xlGetErrorString == nil {
		return ""
	}
	r1, _, _ := a.xlGetErrorString.Call(uintptr(uint16(st)))
	if r1 == 0 {
		return ""
	}
	return windows.BytePtrToString((*byte)(unsafe.Pointer(r1)))
}

func (a *api) wait(notify uintptr, timeout time.Duration) waitResult {
	ev, err := windows.WaitForSingleObject(windows.Handle(notify), uint32(timeout/time.Millisecond))
	if err != nil {
		return waitFailed
	}
	switch ev {
	case windows.WAIT_OBJECT_0:
		return waitOK
	case uint32(windows.WAIT_TIMEOUT):
		return waitTimeout
	}
	return waitFailed
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
