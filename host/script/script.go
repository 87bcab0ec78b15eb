// Package script runs Lua scenario scripts against a TWI bus. Scripts see a
// global "twi" table:
//
//	twi.write(addr, {bytes})     -> true | nil, err
//	twi.read(addr, n)            -> {bytes} | nil, err
//	twi.tx(addr, {bytes}, n)     -> {bytes} | nil, err
//	twi.delay(ms)
//	twi.hex({bytes})             -> "0a ff"
//
// print writes to the engine's output instead of stdout.
package script

import (
	"io"
	"strings"

	"nbtwi/core"

	lua "github.com/yuin/gopher-lua"
	"tinygo.org/x/drivers"
)

// DelayFunc advances time by ms milliseconds
type DelayFunc func(ms int)

// Engine is one Lua interpreter bound to a bus
type Engine struct {
	L     *lua.LState
	bus   drivers.I2C
	out   io.Writer
	delay DelayFunc
}

// New creates an engine. Scripts reach the bus through the twi table.
func New(bus drivers.I2C, out io.Writer) *Engine {
	e := &Engine{
		L:   lua.NewState(),
		bus: bus,
		out: out,
	}

	mod := e.L.SetFuncs(e.L.NewTable(), map[string]lua.LGFunction{
		"write": e.write,
		"read":  e.read,
		"tx":    e.tx,
		"delay": e.sleep,
		"hex":   hexString,
	})
	e.L.SetGlobal("twi", mod)
	e.L.SetGlobal("print", e.L.NewFunction(e.print))

	return e
}

// SetDelay installs the function behind twi.delay. Without one, delays are
// ignored.
func (e *Engine) SetDelay(fn DelayFunc) {
	e.delay = fn
}

// RunString runs a chunk of Lua source
func (e *Engine) RunString(src string) error {
	return e.L.DoString(src)
}

// RunFile runs a Lua file
func (e *Engine) RunFile(path string) error {
	return e.L.DoFile(path)
}

// Close releases the interpreter
func (e *Engine) Close() {
	e.L.Close()
}

func (e *Engine) write(L *lua.LState) int {
	addr := checkAddress(L, 1)
	data := checkBytes(L, 2)
	return pushResult(L, e.bus.Tx(addr, data, nil), nil)
}

func (e *Engine) read(L *lua.LState) int {
	addr := checkAddress(L, 1)
	buf := make([]byte, checkLength(L, 2))
	return pushResult(L, e.bus.Tx(addr, nil, buf), buf)
}

func (e *Engine) tx(L *lua.LState) int {
	addr := checkAddress(L, 1)
	data := checkBytes(L, 2)
	buf := make([]byte, checkLength(L, 3))
	return pushResult(L, e.bus.Tx(addr, data, buf), buf)
}

func (e *Engine) sleep(L *lua.LState) int {
	ms := L.CheckInt(1)
	if ms < 0 {
		L.ArgError(1, "delay must not be negative")
	}
	if e.delay != nil {
		e.delay(ms)
	}
	return 0
}

func (e *Engine) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	io.WriteString(e.out, strings.Join(parts, "\t")+"\n")
	return 0
}

func hexString(L *lua.LState) int {
	L.Push(lua.LString(core.HexBytes(checkBytes(L, 1))))
	return 1
}

// pushResult follows the Lua convention: a value on success, nil and a
// message on failure
func pushResult(L *lua.LState, err error, data []byte) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if data == nil {
		L.Push(lua.LTrue)
		return 1
	}

	tbl := L.CreateTable(len(data), 0)
	for _, b := range data {
		tbl.Append(lua.LNumber(b))
	}
	L.Push(tbl)
	return 1
}

func checkAddress(L *lua.LState, n int) uint16 {
	addr := L.CheckInt(n)
	if addr < 0 || addr > int(core.MaxAddress) {
		L.ArgError(n, "address out of 7-bit range")
	}
	return uint16(addr)
}

func checkLength(L *lua.LState, n int) int {
	length := L.CheckInt(n)
	if length < 0 {
		L.ArgError(n, "length must not be negative")
	}
	return length
}

func checkBytes(L *lua.LState, n int) []byte {
	tbl := L.CheckTable(n)
	data := make([]byte, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		v, ok := tbl.RawGetInt(i).(lua.LNumber)
		if !ok || v < 0 || v > 255 || v != lua.LNumber(int(v)) {
			L.ArgError(n, "bytes must be integers 0..255")
		}
		data = append(data, byte(v))
	}
	return data
}
