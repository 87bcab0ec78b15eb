package prompt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainPrompt(t *testing.T) {
	out := &bytes.Buffer{}
	p := New(strings.NewReader("status\nwrite 0x50 1\n"), out)

	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "status", line)

	line, err = p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "write 0x50 1", line)

	_, err = p.ReadLine()
	assert.ErrorIs(t, err, io.EOF)

	p.Println("queued 1")
	assert.Equal(t, "queued 1\n", out.String())
	assert.NoError(t, p.Close())
}

// rawConn stands in for a terminal already in raw mode
type rawConn struct {
	in  io.Reader
	out bytes.Buffer
}

func (c *rawConn) Read(b []byte) (int, error)  { return c.in.Read(b) }
func (c *rawConn) Write(b []byte) (int, error) { return c.out.Write(b) }

func TestTerminalPrompt(t *testing.T) {
	conn := &rawConn{in: strings.NewReader("reed\x7f\x7fad 0x50 2\r")}
	p := NewTerminal(conn, "> ")

	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "read 0x50 2", line)
	assert.Contains(t, conn.out.String(), "> ")

	_, err = p.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}
