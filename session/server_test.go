// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/auto-lens/lens/can"
)

type ctlReply struct {
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func TestControlServer(t *testing.T) {
	drv := newFakeDriver()
	ses := newTestSession(drv)
	if err := ses.Initialize(context.Background()); err != nil {
		t.Fatalf("could not initialize session: %+v", err)
	}
	defer ses.Shutdown()

	srv, err := newServer("127.0.0.1:0", ses)
	if err != nil {
		t.Fatalf("could not create control server: %+v", err)
	}
	srv.msg = quiet()
	go srv.serve()
	defer srv.close()

	conn, err := net.Dial("tcp", srv.ctl.Addr().String())
	if err != nil {
		t.Fatalf("could not dial control server: %+v", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)
	send := func(name string, args ...string) ctlReply {
		t.Helper()
		err := enc.Encode(struct {
			Name string   `json:"name"`
			Args []string `json:"args"`
		}{name, args})
		if err != nil {
			t.Fatalf("could not send %q: %+v", name, err)
		}
		var rep ctlReply
		if err := dec.Decode(&rep); err != nil {
			t.Fatalf("could not decode %q reply: %+v", name, err)
		}
		return rep
	}

	if rep := send("state"); rep.Msg != "ok" || rep.Data != "ready" {
		t.Fatalf("state: got=%+v", rep)
	}
	if rep := send("start"); rep.Msg == "ok" {
		t.Fatalf("start before connect replied ok")
	}
	if rep := send("connect", "0"); rep.Msg != "ok" {
		t.Fatalf("connect: got=%+v", rep)
	}
	if rep := send("start"); rep.Msg != "ok" {
		t.Fatalf("start: got=%+v", rep)
	}
	if rep := send("transmit", "123", "AA", "BB"); rep.Msg != "ok" {
		t.Fatalf("transmit: got=%+v", rep)
	}
	if rep := send("transmit", "fd", "123", "AA", "BB", "CC", "DD", "EE", "FF", "00", "11", "22"); rep.Msg != "ok" {
		t.Fatalf("transmit fd: got=%+v", rep)
	}
	sent := drv.transmitted()
	if got, want := len(sent), 2; got != want {
		t.Fatalf("transmitted: got=%d frame(s), want=%d", got, want)
	}
	if !sent[1].IsFD() {
		t.Fatalf("fd transmit produced a classic frame")
	}
	if got, want := sent[1].DLC, can.DLCOfLen(9); got != want {
		t.Fatalf("fd dlc: got=%d, want=%d", got, want)
	}
	if rep := send("stop"); rep.Msg != "ok" {
		t.Fatalf("stop: got=%+v", rep)
	}
	if rep := send("clear"); rep.Msg != "ok" {
		t.Fatalf("clear: got=%+v", rep)
	}
	if got, want := ses.Rows(), 0; got != want {
		t.Fatalf("rows after clear: got=%d, want=%d", got, want)
	}
	if rep := send("bogus"); rep.Msg == "ok" {
		t.Fatalf("unknown command replied ok")
	}
	if rep := send("state"); rep.Data != "connected" {
		t.Fatalf("state after stop: got=%+v", rep)
	}
	send("quit")
}
