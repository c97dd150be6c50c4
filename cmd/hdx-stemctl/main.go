/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"hdxstem/pkg/spec"

	"github.com/chzyer/readline"
	"github.com/jessevdk/go-flags"
)

const (
	app_name           = "HDX-StemCtl"
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Stem Edition"
)

type config struct {
	Socket string `short:"s" long:"socket" env:"HDX_STEM_SOCKET" description:"Server socket"`
	Args   struct {
		Command []string `positional-arg-name:"command"`
	} `positional-args:"yes"`
}

var commands = []string{
	"ABOUT", "PING", "WHOAMI", "STATUS", "TRACKS", "LOAD", "PLAY", "STOP",
	"TOGGLE", "SEEK", "MUTE", "UNMUTE", "VOLUME", "DRAG-BEGIN", "DRAG",
	"DRAG-END", "SOLO", "UNSOLO", "LOOP",
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, c := range commands {
		if c == "LOAD" {
			items = append(items, readline.PcItem(c,
				readline.PcItemDynamic(listFiles)))
			continue
		}
		items = append(items, readline.PcItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}

// listFiles completes stem paths for LOAD.
func listFiles(line string) []string {
	arg := strings.TrimSpace(strings.TrimPrefix(line, "LOAD"))
	if i := strings.LastIndex(arg, " "); i >= 0 {
		arg = arg[i+1:]
	}
	dir := filepath.Dir(arg)
	if arg == "" {
		dir = "."
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if !strings.HasPrefix(name, arg) {
			continue
		}
		if e.IsDir() {
			names = append(names, name+"/")
			continue
		}
		for _, ext := range spec.SupportedExt {
			if strings.EqualFold(filepath.Ext(name), ext) {
				names = append(names, name)
				break
			}
		}
	}
	return names
}

// oneShot sends a single command and prints the first reply.
func oneShot(conn net.Conn, line string) error {
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return err
	}
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "EVENT ") {
			continue
		}
		fmt.Println(sc.Text())
		return nil
	}
	return io.ErrUnexpectedEOF
}

func interactive(conn net.Conn) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "hdx> ",
		AutoComplete: completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("CONNECTED")
	fmt.Println(`Type IPC command, press Enter. "QUIT" to exit`)

	// IPC -> stdout
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			fmt.Fprintln(rl.Stdout(), "RECV:", sc.Text())
		}
		fmt.Fprintln(rl.Stdout(), "SOCKET CLOSED")
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "QUIT") {
			fmt.Println("Bye.")
			return nil
		}
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
}

func realMain() error {
	cfg := &config{Socket: spec.SocketFile}
	if _, err := flags.Parse(cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	conn, err := net.Dial("unix", cfg.Socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	if len(cfg.Args.Command) > 0 {
		return oneShot(conn, strings.Join(cfg.Args.Command, " "))
	}

	fmt.Printf("\n%s V.%d.%d\n", app_name, spec.VersionMajor, spec.VersionMinor)
	fmt.Printf("%s %s\n", developer_title, developer_subtitle)
	return interactive(conn)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
