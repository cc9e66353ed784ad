package socketclient

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const ioTimeout = 2 * time.Second

// testServer is a scripted chat server on a loopback port.
type testServer struct {
	ln    net.Listener
	conns chan *serverConn
}

type serverConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{ln: ln, conns: make(chan *serverConn, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.conns <- &serverConn{t: t, conn: conn, r: bufio.NewReader(conn)}
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *testServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *testServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-s.conns:
		t.Cleanup(func() { _ = sc.conn.Close() })
		return sc
	case <-time.After(ioTimeout):
		t.Fatal("no connection accepted")
		return nil
	}
}

// assertNoConnection fails if a connection is accepted within d.
func (s *testServer) assertNoConnection(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case sc := <-s.conns:
		_ = sc.conn.Close()
		t.Fatal("unexpected connection")
	case <-time.After(d):
	}
}

// readFrame reads one newline-terminated frame and decodes it.
func (sc *serverConn) readFrame() map[string]any {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	line, err := sc.r.ReadBytes('\n')
	require.NoError(sc.t, err)

	var frame map[string]any
	require.NoError(sc.t, json.Unmarshal(line, &frame), "frame %q", line)
	return frame
}

// assertSilent fails if the client sends anything within d.
func (sc *serverConn) assertSilent(d time.Duration) {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := sc.r.ReadBytes('\n')
	require.Error(sc.t, err, "unexpected frame %q", line)
}

func (sc *serverConn) send(raw string) {
	sc.t.Helper()
	_, err := sc.conn.Write([]byte(raw))
	require.NoError(sc.t, err)
}

// handshake reads the credential message and welcomes the client.
func (sc *serverConn) handshake(name string) {
	sc.t.Helper()
	sc.readAuth(name)
	sc.send(`{"type":"welcome"}` + "\n")
}

func (sc *serverConn) readAuth(name string) map[string]any {
	sc.t.Helper()
	frame := sc.readFrame()
	require.Equal(sc.t, name, frame["name"])
	require.Contains(sc.t, frame, "id")
	require.NotContains(sc.t, frame, "password")
	return frame
}

func (sc *serverConn) close() {
	_ = sc.conn.Close()
}
