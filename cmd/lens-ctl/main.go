// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-ctl watches a running lens-srv session and raises
// mail alerts when a measurement stalls: a session that reports
// measuring while its trace no longer grows usually means the bus or
// the hardware died.
package main // import "github.com/auto-lens/lens/cmd/lens-ctl"

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		addr = flag.String("addr", "localhost:9750", "address of the lens-srv control socket")
		freq = flag.Duration("freq", 30*time.Second, "probing interval")
	)

	flag.Parse()

	log.SetPrefix("lens-ctl: ")
	log.SetFlags(0)

	run(*addr, *freq)
}

func run(addr string, freq time.Duration) {
	mon := &monitor{
		addr: addr,
		freq: freq,
		rows: -1,
	}
	log.Printf("watching session on %q...", addr)
	mon.run()
}

type monitor struct {
	addr string
	freq time.Duration

	rows   int
	alerts int
}

func (mon *monitor) run() {
	tick := time.NewTicker(mon.freq)
	defer tick.Stop()
	for range tick.C {
		if err := mon.probe(); err != nil {
			log.Printf("could not probe session: %+v", err)
		}
	}
}

func (mon *monitor) probe() error {
	conn, err := net.Dial("tcp", mon.addr)
	if err != nil {
		return fmt.Errorf("could not dial %q: %w", mon.addr, err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)
	query := func(name string) (interface{}, error) {
		err := enc.Encode(struct {
			Name string   `json:"name"`
			Args []string `json:"args"`
		}{Name: name})
		if err != nil {
			return nil, fmt.Errorf("could not send %q: %w", name, err)
		}
		var rep struct {
			Msg  string      `json:"msg"`
			Data interface{} `json:"data"`
		}
		if err := dec.Decode(&rep); err != nil {
			return nil, fmt.Errorf("could not decode %q reply: %w", name, err)
		}
		if rep.Msg != "ok" {
			return nil, fmt.Errorf("%q failed: %s", name, rep.Msg)
		}
		return rep.Data, nil
	}

	state, err := query("state")
	if err != nil {
		return err
	}
	if state != "measuring" {
		mon.rows = -1
		mon.alerts = 0
		return nil
	}

	data, err := query("rows")
	if err != nil {
		return err
	}
	rows := 0
	switch v := data.(type) {
	case float64:
		rows = int(v)
	case string:
		rows, _ = strconv.Atoi(v)
	}

	last := mon.rows
	mon.rows = rows
	if last < 0 || rows > last {
		mon.alerts = 0
		return nil
	}
	mon.alert(rows)
	return nil
}

const maxAlerts = 5

func (mon *monitor) alert(rows int) {
	log.Printf("trace didn't grow in the last %v (rows=%d)", mon.freq, rows)
	mon.alerts++
	if mon.alerts < maxAlerts {
		mon.alertMail(rows)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func (mon *monitor) alertMail(rows int) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("To", alertMailTgts...)
	msg.SetHeader("Subject", "[lens] measurement stalled")
	msg.SetBody("text/plain", fmt.Sprintf(
		"the session on %q reports measuring but its trace stopped growing (rows=%d, probe=%v)",
		mon.addr, rows, mon.freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	if err := dial.DialAndSend(msg); err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
