package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nbtwi/host/link"
	"nbtwi/host/prompt"
	"nbtwi/host/script"
	"nbtwi/host/serial"

	"github.com/tebeka/atexit"
)

var (
	device     = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", serial.DefaultBaud, "Console baud rate")
	timeout    = flag.Duration("timeout", link.DefaultTimeout, "How long to wait for the board")
	scriptPath = flag.String("script", "", "Run a Lua script against the remote bus and exit")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := serial.Open(cfg)
	if err != nil {
		fail(err)
	}

	l := link.New(port)
	l.Timeout = *timeout
	atexit.Register(func() { l.Close() })

	if *scriptPath != "" {
		err = runScript(l, *scriptPath)
	} else {
		err = interactive(l)
	}
	if err != nil {
		fail(err)
	}
	atexit.Exit(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	atexit.Exit(1)
}

func runScript(l *link.Link, path string) error {
	e := script.New(l, os.Stdout)
	defer e.Close()

	e.SetDelay(func(ms int) {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	})
	return e.RunFile(path)
}

// interactive forwards typed lines to the board and prints everything it
// sends back, including "done" reports that arrive later
func interactive(l *link.Link) error {
	p, err := prompt.Open("twi> ")
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer p.Close()

	l.SetLineHandler(p.Println)
	p.Println("Connected to " + *device + " (type 'help' for console commands, 'quit' to exit)")

	for {
		line, err := p.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}

		if err := l.Send(line); err != nil {
			return err
		}
	}
}
