// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// server exposes a session over a line-oriented JSON control socket.
// Each request is {"name": ..., "args": [...]}, each reply carries
// "msg" ("ok" or the error text) and, for queries, "data".
type server struct {
	ctl net.Listener
	msg *log.Logger
	ses *Session
}

// Serve listens on addr and drives ses from remote commands. It
// returns when the listener fails.
func Serve(addr string, ses *Session) error {
	srv, err := newServer(addr, ses)
	if err != nil {
		return xerrors.Errorf("could not create control server: %w", err)
	}
	return srv.serve()
}

func newServer(addr string, ses *Session) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("could not listen on %q: %w", addr, err)
	}
	return &server{
		ctl: ctl,
		msg: log.New(os.Stdout, "lens-ctl: ", 0),
		ses: ses,
	}, nil
}

func (srv *server) serve() error {
	defer srv.close()
	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return xerrors.Errorf("could not accept connection: %w", err)
		}
		if err := srv.handle(conn); err != nil {
			srv.msg.Printf("could not serve session: %+v", err)
			continue
		}
	}
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	dec := json.NewDecoder(conn)
loop:
	for {
		var req struct {
			Name string   `json:"name"`
			Args []string `json:"args"`
		}
		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(conn, nil, err)
			continue
		}
		srv.msg.Printf("received request: name=%q", req.Name)

		switch strings.ToLower(req.Name) {
		case "state":
			srv.reply(conn, srv.ses.State().String(), nil)

		case "channels":
			srv.reply(conn, srv.ses.Channels(), nil)

		case "rate":
			srv.reply(conn, srv.ses.Rate(), nil)

		case "rows":
			srv.reply(conn, srv.ses.Rows(), nil)

		case "connect":
			if len(req.Args) == 0 {
				srv.reply(conn, nil, srv.ses.Connect())
				continue
			}
			ch, err := strconv.Atoi(req.Args[0])
			if err != nil {
				srv.reply(conn, nil, xerrors.Errorf("bad channel %q: %w", req.Args[0], err))
				continue
			}
			srv.reply(conn, nil, srv.ses.ConnectChannel(ch))

		case "disconnect":
			srv.ses.Disconnect()
			srv.reply(conn, nil, nil)

		case "start":
			srv.reply(conn, nil, srv.ses.Start())

		case "stop":
			srv.ses.Stop()
			srv.reply(conn, nil, nil)

		case "pause":
			srv.reply(conn, nil, srv.ses.Pause())

		case "resume":
			srv.reply(conn, nil, srv.ses.Resume())

		case "transmit":
			// transmit [fd] ID BYTE...
			args := req.Args
			fd := false
			if len(args) > 0 && strings.EqualFold(args[0], "fd") {
				fd = true
				args = args[1:]
			}
			if len(args) < 1 {
				srv.reply(conn, nil, xerrors.Errorf("transmit needs an id"))
				continue
			}
			raw := strings.TrimSuffix(strings.ToLower(args[0]), "x")
			id, err := strconv.ParseUint(raw, 16, 32)
			if err != nil {
				srv.reply(conn, nil, xerrors.Errorf("bad frame id %q: %w", args[0], err))
				continue
			}
			payload := strings.Join(args[1:], " ")
			srv.reply(conn, nil, srv.ses.Transmit(uint32(id), id > 0x7FF, fd, payload))

		case "clear":
			srv.ses.Clear()
			srv.reply(conn, nil, nil)

		case "save":
			if len(req.Args) != 1 {
				srv.reply(conn, nil, xerrors.Errorf("save needs a path"))
				continue
			}
			srv.reply(conn, nil, srv.ses.Save(req.Args[0]))

		case "import":
			if len(req.Args) != 1 {
				srv.reply(conn, nil, xerrors.Errorf("import needs a path"))
				continue
			}
			n, err := srv.ses.Import(req.Args[0])
			srv.reply(conn, n, err)

		case "quit":
			srv.reply(conn, nil, nil)
			break loop

		default:
			srv.msg.Printf("unknown command name=%q, args=%q", req.Name, req.Args)
			srv.reply(conn, nil, xerrors.Errorf("unknown command %q", req.Name))
		}
	}
	return nil
}

func (srv *server) reply(conn net.Conn, data interface{}, err error) {
	rep := struct {
		Msg  string      `json:"msg"`
		Data interface{} `json:"data,omitempty"`
	}{Msg: "ok", Data: data}
	if err != nil {
		rep.Msg = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
