// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracedb archives recorded traces in a MySQL database so
// measurements survive the bounded in-memory store.
package tracedb // import "github.com/auto-lens/lens/tracedb"

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/xerrors"

	"github.com/auto-lens/lens/can"
)

const (
	host = "localhost"

	timeout = 5 * time.Second
)

var (
	usr = "lens"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB is a handle on the trace archive.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the trace archive dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, xerrors.Errorf("tracedb: could not open %q db: %w", dbname, err)
	}

	if err := ping(db, dbname); err != nil {
		return nil, xerrors.Errorf("tracedb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return usr + ":" + pwd + "@tcp(" + host + ")/" + db
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return xerrors.Errorf("tracedb: could not ping %q db: %w", dbname, err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// CreateSchema creates the archive tables if they do not exist.
func (db *DB) CreateSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id      BIGINT AUTO_INCREMENT PRIMARY KEY,
			name    VARCHAR(255) NOT NULL,
			created DATETIME NOT NULL,
			nframes INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS frames (
			trace_id BIGINT NOT NULL,
			seq      INT NOT NULL,
			ts       BIGINT NOT NULL,
			can_id   INT UNSIGNED NOT NULL,
			channel  TINYINT UNSIGNED NOT NULL,
			flags    TINYINT UNSIGNED NOT NULL,
			dlc      TINYINT UNSIGNED NOT NULL,
			data     VARBINARY(64) NOT NULL,
			PRIMARY KEY (trace_id, seq)
		)`,
	} {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Errorf("tracedb: could not create schema: %w", err)
		}
	}
	return nil
}

// TraceInfo describes one archived trace.
type TraceInfo struct {
	ID      int64
	Name    string
	Created time.Time
	Frames  int
}

// StoreTrace archives frames under name and returns the trace id.
func (db *DB) StoreTrace(ctx context.Context, name string, frames []can.Frame) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO traces (name, created, nframes) VALUES (?, ?, ?)",
		name, time.Now().UTC(), len(frames),
	)
	if err != nil {
		return 0, xerrors.Errorf("tracedb: could not insert trace %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, xerrors.Errorf("tracedb: could not get trace id for %q: %w", name, err)
	}

	for i := range frames {
		f := &frames[i]
		_, err := db.db.ExecContext(
			ctx,
			"INSERT INTO frames (trace_id, seq, ts, can_id, channel, flags, dlc, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			id, i, f.Timestamp, f.ID, f.Channel, f.Flags, f.DLC, f.Payload(),
		)
		if err != nil {
			return 0, xerrors.Errorf("tracedb: could not insert frame %d of trace %q: %w", i, name, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, xerrors.Errorf("tracedb: context error while storing trace %q: %w", name, err)
	}
	return id, nil
}

// Traces lists the archived traces, most recent first.
func (db *DB) Traces(ctx context.Context) ([]TraceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, name, created, nframes FROM traces ORDER BY created DESC",
	)
	if err != nil {
		return nil, xerrors.Errorf("tracedb: could not query traces: %w", err)
	}
	defer rows.Close()

	var traces []TraceInfo
	for rows.Next() {
		var info TraceInfo
		err = rows.Scan(&info.ID, &info.Name, &info.Created, &info.Frames)
		if err != nil {
			return nil, xerrors.Errorf("tracedb: could not scan trace row: %w", err)
		}
		traces = append(traces, info)
	}

	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("tracedb: could not scan traces: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("tracedb: context error while listing traces: %w", err)
	}
	return traces, nil
}

// Frames loads the frames of one archived trace in order.
func (db *DB) Frames(ctx context.Context, traceID int64) ([]can.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT ts, can_id, channel, flags, dlc, data FROM frames WHERE trace_id = ? ORDER BY seq",
		traceID,
	)
	if err != nil {
		return nil, xerrors.Errorf("tracedb: could not query frames of trace %d: %w", traceID, err)
	}
	defer rows.Close()

	var frames []can.Frame
	for rows.Next() {
		var (
			f    can.Frame
			data []byte
		)
		err = rows.Scan(&f.Timestamp, &f.ID, &f.Channel, &f.Flags, &f.DLC, &data)
		if err != nil {
			return nil, xerrors.Errorf("tracedb: could not scan frame row: %w", err)
		}
		copy(f.Data[:], data)
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("tracedb: could not scan frames: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("tracedb: context error while loading trace %d: %w", traceID, err)
	}
	return frames, nil
}
