package console

import (
	"strconv"

	"nbtwi/core"
)

// registerBuiltins registers the driver commands
func registerBuiltins(r *CommandRegistry) {
	r.Register("help", "", "list commands", cmdHelp)
	r.Register("write", "<addr> <byte>...", "queue a write", cmdWrite)
	r.Register("read", "<addr> <n>", "queue a read of n bytes", cmdRead)
	r.Register("regread", "<addr> <n> <reg-byte>...", "write a register pointer, then read n bytes", cmdRegRead)
	r.Register("status", "", "controller state and counters", cmdStatus)
	r.Register("queue", "", "list queued instructions", cmdQueue)
	r.Register("drop", "<id>", "withdraw a queued request", cmdDrop)
	r.Register("retry", "", "rotate the head instruction to the back", cmdRetry)
	r.Register("events", "", "dump the bus event ring", cmdEvents)
	r.Register("clear", "", "clear the bus event ring", cmdClear)
	r.Register("debug", "[on|off]", "show or switch abort reporting", cmdDebug)
}

func cmdHelp(c *Console, args []string) error {
	for _, line := range c.registry.Help() {
		c.Println(line)
	}
	return nil
}

func cmdWrite(c *Console, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	data, err := parseBytes(args[1:])
	if err != nil {
		return err
	}

	return c.queued(c.submit(addr, data, nil))
}

func cmdRead(c *Console, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	n, err := parseLength(args[1])
	if err != nil {
		return err
	}

	return c.queued(c.submit(addr, nil, make([]byte, n)))
}

func cmdRegRead(c *Console, args []string) error {
	if len(args) < 3 {
		return ErrUsage
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	n, err := parseLength(args[1])
	if err != nil {
		return err
	}
	reg, err := parseBytes(args[2:])
	if err != nil {
		return err
	}

	return c.queued(c.submit(addr, reg, make([]byte, n)))
}

func cmdStatus(c *Console, args []string) error {
	ctrl := c.ctrl
	queued := 0
	if q := ctrl.Queue(); q != nil {
		queued = q.Size()
	}
	stats := ctrl.Stats()

	c.Println("busy=" + strconv.FormatBool(ctrl.Busy()) +
		" queued=" + strconv.Itoa(queued) +
		" pending=" + strconv.Itoa(len(c.pending)))
	c.Println("completed=" + utoa(stats.Completed) +
		" addr_nack=" + utoa(stats.AddressNacks) +
		" data_nack=" + utoa(stats.DataNacks) +
		" arb_lost=" + utoa(stats.ArbitrationLost) +
		" unexpected=" + utoa(stats.Unexpected) +
		" spurious=" + utoa(stats.Spurious))
	return nil
}

func cmdQueue(c *Console, args []string) error {
	q := c.ctrl.Queue()
	if q == nil {
		return core.ErrNoQueue
	}

	pos := 0
	q.Each(func(inst *core.Instruction) {
		id := "-"
		if rid, ok := c.requestID(inst); ok {
			id = strconv.Itoa(int(rid))
		}
		c.Println(strconv.Itoa(pos) +
			" id=" + id +
			" addr=0x" + core.HexBytes([]byte{uint8(inst.Address())}) +
			" " + inst.Direction().String() +
			" len=" + strconv.Itoa(inst.Len()))
		pos++
	})
	if pos == 0 {
		c.Println("empty")
	}
	return nil
}

func cmdDrop(c *Console, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}

	id, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return ErrUnknownID
	}
	if err := c.drop(uint16(id)); err != nil {
		return err
	}

	c.Println("dropped " + args[0])
	return nil
}

func cmdRetry(c *Console, args []string) error {
	if !c.ctrl.RequeueHead() {
		c.Println("retry refused")
		return nil
	}
	c.Println("ok")
	return nil
}

func cmdEvents(c *Console, args []string) error {
	for _, evt := range core.BusEvents() {
		c.Println("evt " + core.FormatBusEvent(evt))
	}
	return nil
}

func cmdClear(c *Console, args []string) error {
	core.ClearBusEvents()
	c.Println("ok")
	return nil
}

func cmdDebug(c *Console, args []string) error {
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0] == "on":
		core.SetDebugEnabled(true)
	case len(args) == 1 && args[0] == "off":
		core.SetDebugEnabled(false)
	default:
		return ErrUsage
	}

	if core.IsDebugEnabled() {
		c.Println("debug on")
	} else {
		c.Println("debug off")
	}
	return nil
}

// queued reports the id of a submitted request. A request kept pending
// despite an error is announced on the same line as the error, so every
// command still gets exactly one reply and its done line can be matched.
func (c *Console) queued(id uint16, err error) error {
	switch {
	case id == 0:
		return err
	case err != nil:
		c.Println("queued " + strconv.Itoa(int(id)) + " err " + err.Error())
	default:
		c.Println("queued " + strconv.Itoa(int(id)))
	}
	return nil
}

func utoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}
