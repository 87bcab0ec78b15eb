package console

import (
	"bytes"
	"strings"
	"testing"

	"nbtwi/core"
	"nbtwi/twisim"
)

type bench struct {
	board *twisim.Board
	dev   *twisim.RegisterDevice
	con   *Console
	out   *bytes.Buffer
}

func newBench(t *testing.T) *bench {
	t.Helper()

	board, err := twisim.NewBoard(&twisim.Config{
		CPUFrequency: 16000000,
		BusFrequency: 400000,
		LoopPeriodUS: 50,
	})
	if err != nil {
		t.Fatalf("NewBoard failed: %v", err)
	}

	dev := twisim.NewRegisterDevice(1)
	dev.Registers[0x10] = 0x11
	dev.Registers[0x11] = 0x22
	board.Attach(0x50, dev)

	out := &bytes.Buffer{}
	return &bench{
		board: board,
		dev:   dev,
		con:   New(board.Ctrl, out),
		out:   out,
	}
}

// lines returns and clears the console output
func (b *bench) lines() []string {
	text := strings.TrimRight(b.out.String(), "\n")
	b.out.Reset()
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (b *bench) settle(t *testing.T) {
	t.Helper()
	if !b.board.RunUntilIdle(10e-3) {
		t.Fatal("Board did not go idle")
	}
	b.con.Poll()
}

func expectLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestConsoleWrite(t *testing.T) {
	b := newBench(t)

	if err := b.con.Exec("write 0x50 0x20 0xAB 205"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	expectLines(t, b.lines(), "queued 1")

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok")

	if b.dev.Registers[0x20] != 0xAB || b.dev.Registers[0x21] != 205 {
		t.Errorf("Registers not written: %#x %#x", b.dev.Registers[0x20], b.dev.Registers[0x21])
	}
	if b.con.Pending() != 0 {
		t.Errorf("Expected no pending requests, got %d", b.con.Pending())
	}
}

func TestConsoleRegRead(t *testing.T) {
	b := newBench(t)

	b.con.Exec("regread 0x50 2 0x10")
	expectLines(t, b.lines(), "queued 1")

	// Nothing is reported before the instructions finish
	b.con.Poll()
	if got := b.lines(); len(got) != 0 {
		t.Errorf("Expected no output before completion, got %q", got)
	}

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok 11 22")
}

func TestConsoleRead(t *testing.T) {
	b := newBench(t)

	b.con.Exec("write 0x50 0x10")
	b.con.Exec("read 80 1")
	expectLines(t, b.lines(), "queued 1", "queued 2")

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok", "done 2 ok 11")
}

func TestConsoleAddressNack(t *testing.T) {
	b := newBench(t)

	b.con.Exec("read 0x51 1")
	b.lines()
	b.settle(t)

	got := b.lines()
	if len(got) != 1 || !strings.HasPrefix(got[0], "done 1 err "+core.ErrAddressNack.Error()) {
		t.Errorf("Expected address NACK report, got %q", got)
	}
}

func TestConsoleDrop(t *testing.T) {
	b := newBench(t)

	b.con.Exec("write 0x50 0x30 1")
	b.con.Exec("write 0x50 0x31 2")
	b.con.Exec("write 0x50 0x32 3")
	b.lines()

	b.con.Exec("drop 2")
	expectLines(t, b.lines(), "dropped 2")

	if err := b.con.Exec("drop 1"); err != ErrInFlight {
		t.Errorf("Expected ErrInFlight for the head, got %v", err)
	}
	expectLines(t, b.lines(), "err "+ErrInFlight.Error())

	if err := b.con.Exec("drop 9"); err != ErrUnknownID {
		t.Errorf("Expected ErrUnknownID, got %v", err)
	}
	b.lines()

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok", "done 3 ok")

	if _, ok := b.dev.Registers[0x31]; ok {
		t.Error("Dropped write reached the device")
	}
	if b.dev.Registers[0x32] != 3 {
		t.Error("Write after the dropped one was lost")
	}
}

func TestConsoleRegReadDropInFlight(t *testing.T) {
	b := newBench(t)

	b.con.Exec("regread 0x50 1 0x10")
	b.lines()

	// The register write is the head, so neither half may be withdrawn
	if err := b.con.Exec("drop 1"); err != ErrInFlight {
		t.Errorf("Expected ErrInFlight, got %v", err)
	}
	expectLines(t, b.lines(), "err "+ErrInFlight.Error())
	if n := b.board.Ctrl.Queue().Size(); n != 2 {
		t.Errorf("Expected both halves still queued, got %d", n)
	}

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok 11")
}

func TestConsoleDropQueuedRegRead(t *testing.T) {
	b := newBench(t)

	b.con.Exec("write 0x50 0x30 1")
	b.con.Exec("regread 0x50 1 0x10")
	b.lines()

	b.con.Exec("drop 2")
	expectLines(t, b.lines(), "dropped 2")
	if n := b.board.Ctrl.Queue().Size(); n != 1 {
		t.Errorf("Expected only the first write queued, got %d", n)
	}

	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok")
}

func TestConsoleRegReadQueueFull(t *testing.T) {
	newLimited := func(limit int) (*twisim.Board, *Console, *bytes.Buffer) {
		board, err := twisim.NewBoard(&twisim.Config{
			CPUFrequency: 16000000,
			BusFrequency: 400000,
			LoopPeriodUS: 50,
			QueueLimit:   limit,
		})
		if err != nil {
			t.Fatalf("NewBoard failed: %v", err)
		}
		dev := twisim.NewRegisterDevice(1)
		dev.Registers[0x10] = 0x11
		board.Attach(0x50, dev)

		out := &bytes.Buffer{}
		return board, New(board.Ctrl, out), out
	}

	// Write lands at the head: the request stays pending for it
	board, con, out := newLimited(1)
	if err := con.Exec("regread 0x50 1 0x10"); err != nil {
		t.Errorf("Expected the partial request to be accepted, got %v", err)
	}
	b := &bench{board: board, con: con, out: out}
	expectLines(t, b.lines(), "queued 1 err "+core.ErrAllocation.Error())
	if con.Pending() != 1 {
		t.Errorf("Expected request 1 pending, got %d", con.Pending())
	}
	b.settle(t)
	expectLines(t, b.lines(), "done 1 ok")

	// Write behind another request: withdrawn, nothing left behind
	board, con, out = newLimited(2)
	b = &bench{board: board, con: con, out: out}
	con.Exec("write 0x50 0x30 1")
	b.lines()
	if err := con.Exec("regread 0x50 1 0x10"); err != core.ErrAllocation {
		t.Errorf("Expected ErrAllocation, got %v", err)
	}
	expectLines(t, b.lines(), "err "+core.ErrAllocation.Error())
	if n := board.Ctrl.Queue().Size(); n != 1 {
		t.Errorf("Expected the orphan write withdrawn, queue size %d", n)
	}
	if con.Pending() != 1 {
		t.Errorf("Expected only request 1 pending, got %d", con.Pending())
	}
}

func TestConsoleQueueAndRetry(t *testing.T) {
	b := newBench(t)

	b.con.Exec("queue")
	expectLines(t, b.lines(), "empty")

	b.con.Exec("write 0x50 0x01 1")
	b.con.Exec("read 0x51 2")
	b.lines()

	b.con.Exec("queue")
	expectLines(t, b.lines(),
		"0 id=1 addr=0x50 write len=2",
		"1 id=2 addr=0x51 read len=2")

	b.con.Exec("retry")
	expectLines(t, b.lines(), "ok")

	b.con.Exec("queue")
	expectLines(t, b.lines(),
		"0 id=2 addr=0x51 read len=2",
		"1 id=1 addr=0x50 write len=2")

	b.con.Exec("status")
	got := b.lines()
	if len(got) != 2 || got[0] != "busy=false queued=2 pending=2" {
		t.Errorf("Unexpected status: %q", got)
	}

	// Once admitted the head cannot be rotated
	b.board.Ctrl.PollAdmission()
	b.con.Exec("retry")
	expectLines(t, b.lines(), "retry refused")
}

func TestConsoleEvents(t *testing.T) {
	b := newBench(t)

	b.con.Exec("clear")
	expectLines(t, b.lines(), "ok")

	b.con.Exec("write 0x50 0x00 0x01")
	b.lines()
	b.settle(t)
	b.lines()

	b.con.Exec("events")
	got := b.lines()
	if len(got) < 4 {
		t.Fatalf("Expected bus events, got %q", got)
	}
	if !strings.HasPrefix(got[0], "evt ADMIT") {
		t.Errorf("Expected ADMIT first, got %q", got[0])
	}
	if !strings.HasPrefix(got[len(got)-1], "evt COMPLETE") {
		t.Errorf("Expected COMPLETE last, got %q", got[len(got)-1])
	}
}

func TestConsoleErrors(t *testing.T) {
	b := newBench(t)

	b.con.Exec("write 0x50")
	expectLines(t, b.lines(), "err usage: write <addr> <byte>...")

	b.con.Exec("write 0x80 1")
	expectLines(t, b.lines(), "err "+core.ErrInvalidAddress.Error())

	b.con.Exec("read 0x50 zz")
	expectLines(t, b.lines(), "err bad number: zz")

	b.con.Exec("read 0x50 0")
	expectLines(t, b.lines(), "err "+core.ErrEmptyTransfer.Error())

	b.con.Exec("read 0x50 33")
	expectLines(t, b.lines(), "err "+ErrTooLong.Error())

	b.con.Exec("frobnicate")
	expectLines(t, b.lines(), "err "+ErrUnknownCommand.Error())

	b.con.Exec(`write "0x50`)
	if got := b.lines(); len(got) != 1 || !strings.HasPrefix(got[0], "err ") {
		t.Errorf("Expected tokenizer error, got %q", got)
	}
}

func TestConsoleFeed(t *testing.T) {
	b := newBench(t)

	for _, ch := range []byte("write 0x50 0x40 0x99x\x7f\r\n") {
		b.con.Feed(ch)
	}
	expectLines(t, b.lines(), "queued 1")

	b.settle(t)
	b.lines()
	if b.dev.Registers[0x40] != 0x99 {
		t.Errorf("Expected 0x99 written, got %#x", b.dev.Registers[0x40])
	}

	long := strings.Repeat("a", MaxLine+1)
	for _, ch := range []byte(long) {
		b.con.Feed(ch)
	}
	expectLines(t, b.lines(), "err "+ErrLineTooLong.Error())
}

func TestConsoleQueueFull(t *testing.T) {
	board, err := twisim.NewBoard(&twisim.Config{
		CPUFrequency: 16000000,
		BusFrequency: 400000,
		LoopPeriodUS: 50,
		QueueLimit:   1,
	})
	if err != nil {
		t.Fatalf("NewBoard failed: %v", err)
	}

	out := &bytes.Buffer{}
	con := New(board.Ctrl, out)

	con.Exec("write 0x50 1")
	out.Reset()
	if err := con.Exec("write 0x50 2"); err != core.ErrAllocation {
		t.Errorf("Expected ErrAllocation, got %v", err)
	}
	if con.Pending() != 1 {
		t.Errorf("Expected 1 pending request, got %d", con.Pending())
	}
}

func TestConsoleHelp(t *testing.T) {
	b := newBench(t)

	b.con.Exec("help")
	got := b.lines()
	if len(got) != b.con.Registry().Count() {
		t.Errorf("Expected %d help lines, got %d", b.con.Registry().Count(), len(got))
	}
	if got[0] != "clear - clear the bus event ring" {
		t.Errorf("Unexpected first help line %q", got[0])
	}
}

func TestConsoleDebug(t *testing.T) {
	b := newBench(t)
	defer core.SetDebugEnabled(false)

	b.con.Exec("debug")
	expectLines(t, b.lines(), "debug off")

	b.con.Exec("debug on")
	expectLines(t, b.lines(), "debug on")
	if !core.IsDebugEnabled() {
		t.Error("Debug output should be enabled")
	}

	b.con.Exec("debug off")
	expectLines(t, b.lines(), "debug off")

	b.con.Exec("debug loud")
	expectLines(t, b.lines(), "err usage: debug [on|off]")
}
