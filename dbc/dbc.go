// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbc holds the message database model and the signal
// decode/encode contract.
//
// The database is populated externally (by a .dbc parser or by hand in
// tests); this package never parses database source files.
package dbc // import "github.com/auto-lens/lens/dbc"

import "fmt"

// MuxRole describes how a signal participates in multiplexing.
type MuxRole uint8

const (
	MuxNone     MuxRole = iota // plain signal
	MuxSelector                // "M": its raw value selects the active branch
	MuxValue                   // "mN": valid only when the selector reads N
)

// Signal is one named bit-field of a message.
type Signal struct {
	Name         string
	Start        uint16 // start bit (Intel: LSB, Motorola: MSB sawtooth)
	Length       uint16 // bit length, 1-64
	LittleEndian bool
	Signed       bool
	Float        FloatKind
	Scale        float64
	Offset       float64
	Min          float64
	Max          float64
	Unit         string
	Mux          MuxRole
	MuxVal       int64 // selector raw value for MuxValue signals
	Values       map[int64]string
	Comment      string
}

// FloatKind marks IEEE-754 encoded signals.
type FloatKind uint8

const (
	NoFloat FloatKind = iota
	Float32
	Float64
)

// Message is one frame definition of the database.
type Message struct {
	ID       uint32
	Extended bool
	Name     string
	Length   uint8 // payload byte count
	Sender   string
	Signals  []Signal
	Comment  string
}

// Selector returns the mux selector signal, if the message has one.
func (m *Message) Selector() *Signal {
	for i := range m.Signals {
		if m.Signals[i].Mux == MuxSelector {
			return &m.Signals[i]
		}
	}
	return nil
}

// Database is an immutable snapshot of message definitions.
// Lookups go through the index built by NewDatabase or Merge;
// callers never mutate a database while entries decoded from
// it are still live.
type Database struct {
	Messages []Message

	byID map[uint32]int
}

// NewDatabase builds a database snapshot with its id index.
func NewDatabase(msgs []Message) *Database {
	db := &Database{Messages: msgs}
	db.index()
	return db
}

func (db *Database) index() {
	db.byID = make(map[uint32]int, len(db.Messages))
	for i, m := range db.Messages {
		db.byID[m.ID] = i
	}
}

// MessageByID returns the message definition for a frame id,
// or nil if the database does not define it.
func (db *Database) MessageByID(id uint32) *Message {
	if db == nil {
		return nil
	}
	i, ok := db.byID[id]
	if !ok {
		return nil
	}
	return &db.Messages[i]
}

func (db *Database) IsEmpty() bool { return db == nil || len(db.Messages) == 0 }

// TotalSignalCount counts the signals across all messages.
func (db *Database) TotalSignalCount() int {
	n := 0
	for _, m := range db.Messages {
		n += len(m.Signals)
	}
	return n
}

// Merge returns a new snapshot combining db with others.
// On duplicate ids the last definition wins.
func (db *Database) Merge(others ...*Database) *Database {
	var msgs []Message
	if db != nil {
		msgs = append(msgs, db.Messages...)
	}
	for _, o := range others {
		if o != nil {
			msgs = append(msgs, o.Messages...)
		}
	}
	out := &Database{Messages: msgs}
	out.index()
	return out
}

// ParseError is the error shape reported by an external database
// parser, suitable for logging one line per problem.
type ParseError struct {
	Line int
	Msg  string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("dbc: line %d: %s", e.Line, e.Msg)
}
