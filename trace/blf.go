// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"io"
	"time"

	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

// BLF format constants. All multi-byte fields are little-endian.
const (
	blfStatsSize  = 144    // file statistics block, always at offset 0
	blfAPIVersion = 0x0403 // BLF API v4.3

	blfObjHeaderSize = 24 // "LOBJ" + sizes + type + 64-bit timestamp

	blfObjCANMessage   = 1  // classic frame, 16-byte payload
	blfObjCANFDMessage = 86 // FD frame, 76-byte payload

	blfCANPayload   = 16
	blfCANFDPayload = 76

	// payload flag bits shared by both object types
	blfFlagBRS   = 0x01
	blfFlagExtID = 0x04
	blfFlagTx    = 0x10
)

// BLFEncoder writes frames to the BLF binary trace format.
//
// The object count, last-object timestamp and end time of the file
// statistics block are only known after the last record, so Close
// seeks back and patches them.
//
// The format, as written here, only represents data frames: error and
// remote frames have no encoding and are skipped. This is a known
// limitation of the object types in use, not something to paper over
// with invented type codes.
type BLFEncoder struct {
	w   io.WriteSeeker
	buf []byte
	err error

	count  uint32
	lastTs uint64 // 10-ns ticks
	now    func() time.Time
}

// NewBLFEncoder creates an encoder writing the BLF binary format to w.
// The file statistics block is written immediately, with placeholders
// for the fields Close back-patches.
func NewBLFEncoder(w io.WriteSeeker) (*BLFEncoder, error) {
	enc := &BLFEncoder{
		w:   w,
		buf: make([]byte, 8),
		now: time.Now,
	}
	enc.writeStats()
	if enc.err != nil {
		return nil, xerrors.Errorf("trace: could not write BLF statistics block: %w", enc.err)
	}
	return enc, nil
}

func (enc *BLFEncoder) writeStats() {
	enc.write([]byte("BLF\x00"))          // [0..3]   signature
	enc.writeU32(blfStatsSize)            // [4..7]   statsSize
	enc.writeU32(blfAPIVersion)           // [8..11]  apiVersion
	enc.writeU32(0)                       // [12..15] objectCount (back-patch)
	enc.writeU32(0)                       // [16..19] objectsRead (back-patch)
	enc.writeU32(0)                       // [20..23] unspecified
	enc.writeU64(0)                       // [24..31] measureStartTs
	enc.writeU64(0)                       // [32..39] lastObjectTs (back-patch)
	enc.writeSystemTime(enc.now())        // [40..55] startTime
	enc.writeSystemTime(enc.now())        // [56..71] endTime (back-patch)
	enc.write(make([]byte, blfStatsSize-72)) // [72..143] reserved
}

// writeSystemTime writes a Windows SYSTEMTIME (8 x uint16).
func (enc *BLFEncoder) writeSystemTime(t time.Time) {
	enc.writeU16(uint16(t.Year()))
	enc.writeU16(uint16(t.Month()))
	enc.writeU16(uint16(t.Weekday())) // Sunday = 0
	enc.writeU16(uint16(t.Day()))
	enc.writeU16(uint16(t.Hour()))
	enc.writeU16(uint16(t.Minute()))
	enc.writeU16(uint16(t.Second()))
	enc.writeU16(uint16(t.Nanosecond() / 1e6))
}

// Encode writes one frame record. Error and remote frames are skipped
// silently: the object types in use cannot represent them.
func (enc *BLFEncoder) Encode(f *can.Frame) error {
	if enc.err != nil {
		return enc.err
	}
	if f.IsError() || f.IsRemote() {
		return nil
	}

	ts := f.Timestamp / 10 // ns -> 10-ns ticks

	var flags uint8
	if f.IsBRS() {
		flags |= blfFlagBRS
	}
	if f.IsExtended() {
		flags |= blfFlagExtID
	}
	if f.IsTxEcho() {
		flags |= blfFlagTx
	}

	if f.IsFD() {
		enc.objHeader(blfObjCANFDMessage, blfCANFDPayload, ts)
		enc.writeU32(f.ID)
		enc.writeU16(uint16(f.Channel))
		enc.writeU8(f.DLC)
		enc.writeU8(flags)
		enc.writeU32(0) // reserved, aligns data[]
		enc.writeData(f, can.MaxDataLen)
	} else {
		enc.objHeader(blfObjCANMessage, blfCANPayload, ts)
		enc.writeU32(f.ID)
		enc.writeU16(uint16(f.Channel))
		enc.writeU8(f.DLC)
		enc.writeU8(flags)
		enc.writeData(f, 8)
	}
	if enc.err != nil {
		return xerrors.Errorf("trace: could not write BLF record: %w", enc.err)
	}

	enc.count++
	enc.lastTs = ts
	return nil
}

// writeData writes the payload bytes zero-padded to size, so stale
// bytes beyond the DLC-derived length never leak into the file.
func (enc *BLFEncoder) writeData(f *can.Frame, size int) {
	n := f.PayloadLen()
	if n > size {
		n = size
	}
	enc.write(f.Data[:n])
	if n < size {
		enc.write(make([]byte, size-n))
	}
}

func (enc *BLFEncoder) objHeader(typ uint32, payload uint32, ts uint64) {
	enc.write([]byte("LOBJ"))
	enc.writeU16(blfObjHeaderSize)
	enc.writeU16(1) // header version
	enc.writeU32(blfObjHeaderSize + payload)
	enc.writeU32(typ)
	enc.writeU64(ts)
}

// Close back-patches the statistics block.
func (enc *BLFEncoder) Close() error {
	if enc.err != nil {
		return enc.err
	}

	enc.seek(12)
	enc.writeU32(enc.count) // objectCount
	enc.writeU32(enc.count) // objectsRead

	enc.seek(32)
	enc.writeU64(enc.lastTs)

	enc.seek(56)
	enc.writeSystemTime(enc.now())

	if _, err := enc.w.Seek(0, io.SeekEnd); err != nil && enc.err == nil {
		enc.err = err
	}
	if enc.err != nil {
		return xerrors.Errorf("trace: could not patch BLF statistics block: %w", enc.err)
	}
	return nil
}

func (enc *BLFEncoder) seek(off int64) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Seek(off, io.SeekStart)
}

func (enc *BLFEncoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *BLFEncoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *BLFEncoder) writeU16(v uint16) {
	binary.LittleEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *BLFEncoder) writeU32(v uint32) {
	binary.LittleEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *BLFEncoder) writeU64(v uint64) {
	binary.LittleEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}

// BLFDecoder reads frames from the BLF binary trace format.
//
// Unlike the text decoder, structural corruption (bad signature,
// inconsistent sizes, truncated records) is fatal for the whole file.
// Records with unknown object types are skipped by seeking past their
// declared size.
type BLFDecoder struct {
	r   io.ReadSeeker
	buf []byte
	err error
	n   int // frames decoded so far

	// Count is the objectCount declared in the statistics block,
	// usable as an allocation hint.
	Count uint32
}

// NewBLFDecoder creates a decoder reading the BLF binary format from r.
// The file statistics block is read and validated here.
func NewBLFDecoder(r io.ReadSeeker) (*BLFDecoder, error) {
	dec := &BLFDecoder{
		r:   r,
		buf: make([]byte, 8),
	}

	var sig [4]byte
	dec.read(sig[:])
	if dec.err != nil {
		return nil, xerrors.Errorf("trace: could not read BLF signature: %w", dec.err)
	}
	if string(sig[:]) != "BLF\x00" {
		return nil, xerrors.Errorf("trace: invalid BLF signature (got=%q)", sig[:])
	}

	statsSize := dec.readU32()
	_ = dec.readU32() // apiVersion, not validated
	dec.Count = dec.readU32()
	if dec.err != nil {
		return nil, xerrors.Errorf("trace: could not read BLF statistics block: %w", dec.err)
	}
	if statsSize < blfStatsSize {
		return nil, xerrors.Errorf("trace: invalid BLF statistics block size (got=%d, want>=%d)", statsSize, blfStatsSize)
	}

	if _, err := r.Seek(int64(statsSize), io.SeekStart); err != nil {
		return nil, xerrors.Errorf("trace: could not seek BLF data section: %w", err)
	}
	return dec, nil
}

// Decode reads the next data frame. It returns io.EOF at the end of
// the stream once at least one frame was decoded; a BLF stream with
// zero recognizable frames is an error.
func (dec *BLFDecoder) Decode(f *can.Frame) error {
	if dec.err != nil {
		return dec.err
	}
	for {
		var sig [4]byte
		_, err := io.ReadFull(dec.r, sig[:])
		switch {
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			// trailing bytes shorter than an object header end the stream
			if dec.n == 0 {
				dec.err = xerrors.New("trace: no CAN frames found in BLF stream")
				return dec.err
			}
			dec.err = io.EOF
			return io.EOF
		case err != nil:
			dec.err = xerrors.Errorf("trace: could not read BLF object header: %w", err)
			return dec.err
		}
		if string(sig[:]) != "LOBJ" {
			dec.err = xerrors.Errorf("trace: unexpected BLF object signature (got=%q)", sig[:])
			return dec.err
		}

		headerSize := dec.readU16()
		_ = dec.readU16() // header version
		objectSize := dec.readU32()
		objectType := dec.readU32()
		ts := dec.readU64()
		if dec.err != nil {
			dec.err = xerrors.Errorf("trace: corrupted BLF object header: %w", dec.err)
			return dec.err
		}
		if headerSize < blfObjHeaderSize || objectSize < uint32(headerSize) {
			dec.err = xerrors.Errorf("trace: invalid BLF object size (header=%d object=%d)",
				headerSize, objectSize)
			return dec.err
		}
		dec.skip(int64(headerSize) - blfObjHeaderSize)
		payload := objectSize - uint32(headerSize)

		switch {
		case objectType == blfObjCANMessage && payload >= blfCANPayload:
			id := dec.readU32()
			channel := dec.readU16()
			dlc := dec.readU8()
			flags := dec.readU8()
			var data [8]byte
			dec.read(data[:])
			dec.skip(int64(payload) - blfCANPayload)
			if dec.err != nil {
				dec.err = xerrors.Errorf("trace: corrupted BLF CAN object: %w", dec.err)
				return dec.err
			}
			*f = can.Frame{
				ID:        id & 0x1FFFFFFF,
				Channel:   clampChannel(channel),
				Timestamp: ts * 10,
			}
			if dlc > 8 {
				dlc = 8
			}
			f.DLC = dlc
			copy(f.Data[:8], data[:])
			f.Flags = blfFlags(flags, false)
			dec.n++
			return nil

		case objectType == blfObjCANFDMessage && payload >= blfCANFDPayload:
			id := dec.readU32()
			channel := dec.readU16()
			dlc := dec.readU8()
			flags := dec.readU8()
			_ = dec.readU32() // reserved
			var data [64]byte
			dec.read(data[:])
			dec.skip(int64(payload) - blfCANFDPayload)
			if dec.err != nil {
				dec.err = xerrors.Errorf("trace: corrupted BLF CAN FD object: %w", dec.err)
				return dec.err
			}
			*f = can.Frame{
				ID:        id & 0x1FFFFFFF,
				Channel:   clampChannel(channel),
				Timestamp: ts * 10,
			}
			if dlc > 15 {
				dlc = 15
			}
			f.DLC = dlc
			copy(f.Data[:], data[:])
			f.Flags = blfFlags(flags, true)
			dec.n++
			return nil

		default:
			// unknown object type: seek past its declared size
			dec.skip(int64(payload))
			if dec.err != nil {
				dec.err = xerrors.Errorf("trace: truncated BLF object: %w", dec.err)
				return dec.err
			}
		}
	}
}

func blfFlags(flags uint8, fd bool) uint8 {
	var out uint8
	if fd {
		out |= can.FD
		if flags&blfFlagBRS != 0 {
			out |= can.BRS
		}
	}
	if flags&blfFlagExtID != 0 {
		out |= can.Extended
	}
	if flags&blfFlagTx != 0 {
		out |= can.TxEcho
	}
	return out
}

func clampChannel(ch uint16) uint8 {
	if ch < 1 {
		return 1
	}
	if ch > 255 {
		return 255
	}
	return uint8(ch)
}

func (dec *BLFDecoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
}

func (dec *BLFDecoder) skip(n int64) {
	if dec.err != nil || n <= 0 {
		return
	}
	_, dec.err = dec.r.Seek(n, io.SeekCurrent)
}

func (dec *BLFDecoder) readU8() uint8 {
	dec.read(dec.buf[:1])
	return dec.buf[0]
}

func (dec *BLFDecoder) readU16() uint16 {
	dec.read(dec.buf[:2])
	return binary.LittleEndian.Uint16(dec.buf[:2])
}

func (dec *BLFDecoder) readU32() uint32 {
	dec.read(dec.buf[:4])
	return binary.LittleEndian.Uint32(dec.buf[:4])
}

func (dec *BLFDecoder) readU64() uint64 {
	dec.read(dec.buf[:8])
	return binary.LittleEndian.Uint64(dec.buf[:8])
}
