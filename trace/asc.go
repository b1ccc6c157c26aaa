// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

// ASCEncoder writes frames to the ASC text trace format.
//
// The header block is written on the first Encode; Close writes the
// trailing trigger block marker and flushes.
type ASCEncoder struct {
	w     *bufio.Writer
	err   error
	begun bool
	now   func() time.Time
}

// NewASCEncoder creates an encoder that writes the ASC text format to w.
func NewASCEncoder(w io.Writer) *ASCEncoder {
	return &ASCEncoder{
		w:   bufio.NewWriter(w),
		now: time.Now,
	}
}

const ascDateFormat = "Mon Jan 02 15:04:05.000 pm 2006"

func (enc *ASCEncoder) header() {
	date := enc.now().Format(ascDateFormat)
	enc.printf("date %s\n", date)
	enc.printf("base hex  timestamps absolute\n")
	enc.printf("no internal events logged\n")
	enc.printf("// version 9.0.0\n")
	enc.printf("// Application: AutoLens  v1.0.0\n")
	enc.printf("Begin Triggerblock\n")
}

func (enc *ASCEncoder) printf(format string, args ...interface{}) {
	if enc.err != nil {
		return
	}
	_, enc.err = fmt.Fprintf(enc.w, format, args...)
}

// Encode writes one frame line.
func (enc *ASCEncoder) Encode(f *can.Frame) error {
	if enc.err != nil {
		return enc.err
	}
	if !enc.begun {
		enc.header()
		enc.begun = true
	}

	ts := float64(f.Timestamp) / 1e9

	var id string
	if f.IsExtended() {
		id = fmt.Sprintf("%08Xx", f.ID)
	} else {
		id = fmt.Sprintf("%03X", f.ID)
	}

	dir := "Rx"
	if f.IsTxEcho() {
		dir = "Tx"
	}

	switch {
	case f.IsError():
		// error frames carry no data bytes, just the keyword.
		enc.printf("   %12.6f %d  %s  %-4s   ErrorFrame\n", ts, f.Channel, id, dir)

	case f.IsRemote():
		// remote frames carry a DLC but no data bytes.
		enc.printf("   %12.6f %d  %s  %-4s   r %d\n", ts, f.Channel, id, dir, f.DLC)

	case f.IsFD():
		flags := ""
		if f.IsBRS() {
			flags = "  BRS"
		}
		enc.printf("   %12.6f %d  %s  %-4s   CANFD %d %s%s\n",
			ts, f.Channel, id, dir, f.DLC, hexBytes(f.Payload()), flags)

	default:
		enc.printf("   %12.6f %d  %s  %-4s   d %d %s\n",
			ts, f.Channel, id, dir, f.DLC, hexBytes(f.Payload()))
	}

	if enc.err != nil {
		return xerrors.Errorf("trace: could not write ASC frame: %w", enc.err)
	}
	return nil
}

// Close writes the trailing block marker and flushes the stream.
func (enc *ASCEncoder) Close() error {
	if enc.err != nil {
		return enc.err
	}
	if !enc.begun {
		enc.header()
		enc.begun = true
	}
	enc.printf("End TriggerBlock\n")
	if enc.err == nil {
		enc.err = enc.w.Flush()
	}
	if enc.err != nil {
		return xerrors.Errorf("trace: could not close ASC stream: %w", enc.err)
	}
	return nil
}

func hexBytes(p []byte) string {
	var b strings.Builder
	b.Grow(len(p) * 3)
	for i, v := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// ASCDecoder reads frames from the ASC text trace format.
//
// The decoder is best-effort: blank, metadata and malformed lines are
// skipped, not fatal. Reaching the end of the stream without a single
// recognized frame is the only failure mode.
type ASCDecoder struct {
	s   *bufio.Scanner
	n   int // frames decoded so far
	err error
}

// NewASCDecoder creates a decoder reading the ASC text format from r.
func NewASCDecoder(r io.Reader) *ASCDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ASCDecoder{s: s}
}

// Decode reads the next frame. It returns io.EOF at the end of the
// stream once at least one frame was decoded.
func (dec *ASCDecoder) Decode(f *can.Frame) error {
	if dec.err != nil {
		return dec.err
	}
	for dec.s.Scan() {
		if dec.parseLine(dec.s.Text(), f) {
			dec.n++
			return nil
		}
	}
	if err := dec.s.Err(); err != nil {
		dec.err = xerrors.Errorf("trace: could not read ASC stream: %w", err)
		return dec.err
	}
	if dec.n == 0 {
		dec.err = xerrors.New("trace: no CAN frames found in ASC stream")
		return dec.err
	}
	dec.err = io.EOF
	return io.EOF
}

func (dec *ASCDecoder) parseLine(raw string, f *can.Frame) bool {
	line := strings.TrimSpace(raw)
	if line == "" || isASCMetadata(line) {
		return false
	}

	tokens := strings.Fields(line)
	if len(tokens) < 5 {
		return false
	}

	ts, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil || ts < 0 {
		return false
	}

	channel := parseChannelToken(tokens[1])

	id, extended, ok := parseCANIDToken(tokens[2])
	if !ok {
		return false
	}

	dir := strings.ToLower(tokens[3])
	if dir != "rx" && dir != "tx" {
		return false
	}

	*f = can.Frame{
		ID:        id,
		Channel:   channel,
		Timestamp: uint64(ts*1e9 + 0.5),
	}
	if extended {
		f.Flags |= can.Extended
	}
	if dir == "tx" {
		f.Flags |= can.TxEcho
	}

	typ := strings.ToLower(tokens[4])
	rest := tokens[5:]

	switch typ {
	case "errorframe", "error":
		f.Flags |= can.Error
		return true

	case "r":
		dlc, ok := parseDLCToken(rest, false)
		if !ok {
			return false
		}
		f.Flags |= can.Remote
		f.DLC = dlc
		return true

	case "canfd", "fd":
		dlc, ok := parseDLCToken(rest, true)
		if !ok {
			return false
		}
		f.Flags |= can.FD
		f.DLC = dlc
		rest = rest[1:]

		n := 0
		for len(rest) > 0 {
			v, ok := parseByteToken(rest[0])
			if !ok {
				break
			}
			if n < can.MaxDataLen {
				f.Data[n] = v
			}
			n++
			rest = rest[1:]
		}
		if n > 0 && n != can.LenOfDLC(f.DLC) {
			if n > can.MaxDataLen {
				n = can.MaxDataLen
			}
			f.DLC = can.DLCOfLen(n)
		}
		for _, tok := range rest {
			if strings.EqualFold(tok, "BRS") {
				f.Flags |= can.BRS
			}
		}
		return true

	case "d":
		dlc, ok := parseDLCToken(rest, false)
		if !ok {
			return false
		}
		f.DLC = dlc
		rest = rest[1:]

		n := 0
		expected := int(dlc)
		if expected > 8 {
			expected = 8
		}
		for len(rest) > 0 && n < expected {
			v, ok := parseByteToken(rest[0])
			if !ok {
				break
			}
			f.Data[n] = v
			n++
			rest = rest[1:]
		}
		if n != expected {
			f.DLC = uint8(n)
		}
		return true
	}
	return false
}

func isASCMetadata(line string) bool {
	if strings.HasPrefix(line, "//") {
		return true
	}
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "date "),
		strings.HasPrefix(lower, "base "),
		strings.HasPrefix(lower, "no internal events"),
		lower == "begin triggerblock",
		lower == "end triggerblock",
		lower == "begin trigger block",
		lower == "end trigger block":
		return true
	}
	return false
}

// parseChannelToken extracts the digits of a channel label, tolerating
// exotic forms like "CAN1". A label without a usable number maps to
// channel 1.
func parseChannelToken(tok string) uint8 {
	var digits strings.Builder
	for _, r := range tok {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	v, err := strconv.Atoi(digits.String())
	if err != nil || v <= 0 || v > 255 {
		return 1
	}
	return uint8(v)
}

func parseCANIDToken(tok string) (id uint32, extended, ok bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false, false
	}
	if strings.HasSuffix(strings.ToLower(tok), "x") {
		extended = true
		tok = tok[:len(tok)-1]
	}
	if strings.HasSuffix(strings.ToLower(tok), "h") {
		tok = tok[:len(tok)-1]
	}
	tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
	v, err := strconv.ParseUint(tok, 16, 64)
	if err != nil || v > 0x1FFFFFFF {
		return 0, false, false
	}
	// some logs omit the explicit 'x' suffix for 29-bit ids
	if !extended && v > 0x7FF {
		extended = true
	}
	return uint32(v), extended, true
}

func parseByteToken(tok string) (uint8, bool) {
	tok = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(tok), "0x"), "0X")
	v, err := strconv.ParseUint(tok, 16, 64)
	if err != nil || v > 0xFF {
		return 0, false
	}
	return uint8(v), true
}

func parseDLCToken(rest []string, fd bool) (uint8, bool) {
	if len(rest) == 0 {
		return 0, false
	}
	tok := rest[0]
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		v, err = strconv.ParseInt(tok, 16, 64)
		if err != nil {
			return 0, false
		}
	}
	if v < 0 {
		return 0, false
	}
	if fd {
		if v <= 15 {
			return uint8(v), true
		}
		if v > can.MaxDataLen {
			v = can.MaxDataLen
		}
		return can.DLCOfLen(int(v)), true
	}
	if v > 8 {
		v = 8
	}
	return uint8(v), true
}
