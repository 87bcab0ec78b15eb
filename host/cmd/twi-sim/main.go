package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"nbtwi/console"
	"nbtwi/core"
	"nbtwi/host/prompt"
	"nbtwi/host/script"
	"nbtwi/ranging"
	"nbtwi/twisim"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"
)

var (
	configPath = flag.String("config", "", "Bench configuration (JSON); default is a VL6180X at 0x29")
	scriptPath = flag.String("script", "", "Run a Lua script against the simulated bus and exit")
	trace      = flag.Bool("trace", false, "Print every bus operation to stderr")
	traceDB    = flag.String("trace-db", "", "Record every bus operation in a SQLite database")
	ranger     = flag.Bool("range", false, "Run the rangefinder task in the main loop")
	debug      = flag.Bool("debug", false, "Report aborted instructions on stderr")
)

// settle bounds how long the board runs after each console line
const settle = 50e-3

func main() {
	flag.Parse()

	// Abort reports are formatted off the event path; "debug on|off" toggles them
	core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
	core.SetDebugEnabled(*debug)
	core.InitAsyncDebug()

	board, err := buildBoard()
	if err != nil {
		fail(err)
	}

	if err := setupTracing(board); err != nil {
		fail(err)
	}

	if *scriptPath != "" {
		e := script.New(board.Bus(), os.Stdout)
		e.SetDelay(board.Delay)
		err := e.RunFile(*scriptPath)
		e.Close()
		if err != nil {
			fail(err)
		}
		atexit.Exit(0)
	}

	if err := interactive(board); err != nil {
		fail(err)
	}
	atexit.Exit(0)
}

// fail runs the exit handlers, so the trace database is flushed
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	atexit.Exit(1)
}

func setupTracing(board *twisim.Board) error {
	var tracers []twisim.Tracer

	if *trace {
		tracers = append(tracers, func(now sim.VTimeInSec, line string) {
			fmt.Fprintf(os.Stderr, "%12.1fus  %s\n", float64(now)*1e6, line)
		})
	}

	if *traceDB != "" {
		db, err := twisim.NewTraceDB(*traceDB)
		if err != nil {
			return err
		}
		atexit.Register(func() {
			if err := db.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		})
		fmt.Fprintf(os.Stderr, "Tracing bus to %s (run %s)\n", *traceDB, db.RunID())
		tracers = append(tracers, db.Trace)
	}

	switch len(tracers) {
	case 0:
	case 1:
		board.TWI.SetTracer(tracers[0])
	default:
		board.TWI.SetTracer(func(now sim.VTimeInSec, line string) {
			for _, fn := range tracers {
				fn(now, line)
			}
		})
	}
	return nil
}

func buildBoard() (*twisim.Board, error) {
	cfg := twisim.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = twisim.LoadConfig(data); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return twisim.NewBoard(cfg)
}

// interactive runs the firmware console against the board. Each line is
// executed, then simulated time advances until the bus settles.
func interactive(board *twisim.Board) error {
	p, err := prompt.Open("sim> ")
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer p.Close()

	con := console.New(board.Ctrl, p)
	registerSimCommands(con, board)

	if *ranger {
		r := ranging.New(board.Queue)
		if !r.Start() {
			return errors.New("rangefinder start sequence did not fit in the queue")
		}
		board.AddTask(r.Task)
		registerRangeCommand(con, r)
	}

	p.Println("TWI simulator (type 'help' for commands, 'quit' to exit)")

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

		con.Exec(line)
		board.RunUntilIdle(settle)
		con.Poll()
	}
}
