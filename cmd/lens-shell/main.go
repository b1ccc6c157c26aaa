// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lens-shell is an interactive client for the lens-srv
// control socket.
package main // import "github.com/auto-lens/lens/cmd/lens-shell"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("lens-shell: ")
	log.SetFlags(0)

	addr := flag.String("addr", "localhost:9750", "address of the lens-srv control socket")

	flag.Usage = func() {
		fmt.Printf(`lens-shell is an interactive client for the lens-srv control socket.

Usage: lens-shell [OPTIONS]

Commands:

 state | channels | rate | rows
 connect [CHANNEL]
 disconnect
 start | stop | pause | resume
 transmit [fd] ID BYTE [BYTE ...]
 clear
 save PATH
 import PATH
 quit

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(*addr); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not dial %q: %w", addr, err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	history := filepath.Join(os.TempDir(), ".lens_shell_history")
	if f, err := os.Open(history); err == nil {
		term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(history); err == nil {
			term.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		line, err := term.Prompt("lens> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			return nil // EOF
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		toks := strings.Fields(line)
		req := struct {
			Name string   `json:"name"`
			Args []string `json:"args"`
		}{Name: toks[0], Args: toks[1:]}

		if err := enc.Encode(req); err != nil {
			return fmt.Errorf("could not send %q: %w", req.Name, err)
		}
		var rep struct {
			Msg  string      `json:"msg"`
			Data interface{} `json:"data"`
		}
		if err := dec.Decode(&rep); err != nil {
			return fmt.Errorf("could not decode %q reply: %w", req.Name, err)
		}

		if rep.Msg != "ok" {
			fmt.Printf("error: %s\n", rep.Msg)
			continue
		}
		if rep.Data != nil {
			out, _ := json.MarshalIndent(rep.Data, "", "  ")
			fmt.Printf("%s\n", out)
		} else {
			fmt.Printf("ok\n")
		}

		if strings.EqualFold(req.Name, "quit") {
			return nil
		}
	}
}
