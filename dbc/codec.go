// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbc

import "math"

// RawValue extracts the signal's raw integer value from a payload.
// Bits outside the payload read as zero. The extraction is a pure
// function of (signal definition, bytes).
func (sig *Signal) RawValue(data []byte) int64 {
	var raw uint64
	if sig.LittleEndian {
		for i := 0; i < int(sig.Length); i++ {
			pos := int(sig.Start) + i
			if bitAt(data, pos) {
				raw |= 1 << uint(i)
			}
		}
	} else {
		// Motorola sawtooth: Start names the MSB, the walk descends
		// within a byte and jumps to the MSB side of the next byte.
		pos := int(sig.Start)
		for i := int(sig.Length) - 1; i >= 0; i-- {
			if bitAt(data, pos) {
				raw |= 1 << uint(i)
			}
			if pos%8 == 0 {
				pos += 15
			} else {
				pos--
			}
		}
	}
	if sig.Signed && sig.Length < 64 && raw&(1<<uint(sig.Length-1)) != 0 {
		return int64(raw) - (1 << uint(sig.Length))
	}
	return int64(raw)
}

func bitAt(data []byte, pos int) bool {
	byt := pos / 8
	if byt < 0 || byt >= len(data) {
		return false
	}
	return data[byt]&(1<<uint(pos%8)) != 0
}

// Physical converts a raw value to its physical value,
// raw*scale+offset, clamped to [Min,Max] when that range is finite.
func (sig *Signal) Physical(raw int64) float64 {
	var v float64
	switch sig.Float {
	case Float32:
		v = float64(math.Float32frombits(uint32(raw)))
	case Float64:
		v = math.Float64frombits(uint64(raw))
	default:
		v = float64(raw)
	}
	scale := sig.Scale
	if scale == 0 {
		scale = 1
	}
	v = v*scale + sig.Offset
	if sig.Min < sig.Max && !math.IsInf(sig.Min, 0) && !math.IsInf(sig.Max, 0) {
		if v < sig.Min {
			v = sig.Min
		}
		if v > sig.Max {
			v = sig.Max
		}
	}
	return v
}

// Decode extracts both the raw and the physical value in one pass.
func (sig *Signal) Decode(data []byte) (raw int64, phys float64) {
	raw = sig.RawValue(data)
	return raw, sig.Physical(raw)
}

// EncodeRaw packs a raw value into the payload, the inverse of
// RawValue. Bits outside the payload are dropped.
func (sig *Signal) EncodeRaw(raw int64, data []byte) {
	bits := uint64(raw)
	if sig.Length < 64 {
		bits &= (1 << uint(sig.Length)) - 1
	}
	if sig.LittleEndian {
		for i := 0; i < int(sig.Length); i++ {
			setBit(data, int(sig.Start)+i, bits&(1<<uint(i)) != 0)
		}
	} else {
		pos := int(sig.Start)
		for i := int(sig.Length) - 1; i >= 0; i-- {
			setBit(data, pos, bits&(1<<uint(i)) != 0)
			if pos%8 == 0 {
				pos += 15
			} else {
				pos--
			}
		}
	}
}

func setBit(data []byte, pos int, on bool) {
	byt := pos / 8
	if byt < 0 || byt >= len(data) {
		return
	}
	mask := uint8(1) << uint(pos%8)
	if on {
		data[byt] |= mask
	} else {
		data[byt] &^= mask
	}
}

// Encode packs a physical value into the payload, the inverse of
// Decode. The value is clamped to [Min,Max] when finite before the
// scale/offset conversion.
func (sig *Signal) Encode(phys float64, data []byte) {
	if sig.Min < sig.Max && !math.IsInf(sig.Min, 0) && !math.IsInf(sig.Max, 0) {
		if phys < sig.Min {
			phys = sig.Min
		}
		if phys > sig.Max {
			phys = sig.Max
		}
	}
	scale := sig.Scale
	if scale == 0 {
		scale = 1
	}
	var raw int64
	switch sig.Float {
	case Float32:
		raw = int64(math.Float32bits(float32((phys - sig.Offset) / scale)))
	case Float64:
		raw = int64(math.Float64bits((phys - sig.Offset) / scale))
	default:
		raw = int64(math.Round((phys - sig.Offset) / scale))
	}
	sig.EncodeRaw(raw, data)
}
