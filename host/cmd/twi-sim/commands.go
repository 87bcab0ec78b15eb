package main

import (
	"strconv"

	"nbtwi/console"
	"nbtwi/ranging"
	"nbtwi/twisim"
)

func registerSimCommands(con *console.Console, board *twisim.Board) {
	con.Registry().Register("run", "<ms>", "advance simulated time", func(c *console.Console, args []string) error {
		if len(args) != 1 {
			return console.ErrUsage
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil || ms < 0 {
			return console.ErrUsage
		}

		board.Delay(ms)
		c.Poll()
		c.Println("t=" + strconv.FormatFloat(float64(board.Now())*1e3, 'f', 3, 64) + "ms")
		return nil
	})

	con.Registry().Register("bus", "", "simulated bus counters", func(c *console.Console, args []string) error {
		n := board.TWI.Counters()
		c.Println("scl=" + strconv.FormatUint(uint64(board.TWI.SCLFrequency()), 10) +
			" starts=" + strconv.Itoa(n.Starts) +
			" stops=" + strconv.Itoa(n.Stops) +
			" written=" + strconv.Itoa(n.BytesWritten) +
			" read=" + strconv.Itoa(n.BytesRead) +
			" nacks=" + strconv.Itoa(n.Nacks) +
			" collisions=" + strconv.Itoa(n.Collisions) +
			" arb_lost=" + strconv.Itoa(n.ArbitrationLost))
		return nil
	})

	con.Registry().Register("lose", "", "lose arbitration on the next operation", func(c *console.Console, args []string) error {
		board.TWI.LoseArbitration()
		c.Println("ok")
		return nil
	})
}

func registerRangeCommand(con *console.Console, r *ranging.Ranger) {
	con.Registry().Register("range", "", "last rangefinder sample", func(c *console.Console, args []string) error {
		c.Println("range=" + strconv.Itoa(int(r.Last())) + "mm" +
			" samples=" + strconv.FormatUint(uint64(r.Samples()), 10) +
			" errors=" + strconv.FormatUint(uint64(r.Errors()), 10) +
			" restarts=" + strconv.FormatUint(uint64(r.Restarts()), 10))
		return nil
	})
}
