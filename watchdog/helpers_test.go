package watchdog

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// notifySocket is a fake supervisor: a unixgram socket that records notifications.
type notifySocket struct {
	t    *testing.T
	path string
	conn *net.UnixConn
}

func newNotifySocket(t *testing.T) *notifySocket {
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &notifySocket{t: t, path: path, conn: conn}
}

func (n *notifySocket) lookup() string { return n.path }

// next returns the next datagram, failing the test if none arrives within d.
func (n *notifySocket) next(d time.Duration) string {
	require.NoError(n.t, n.conn.SetReadDeadline(time.Now().Add(d)))
	buf := make([]byte, 256)
	c, _, err := n.conn.ReadFrom(buf)
	require.NoError(n.t, err)
	return string(buf[:c])
}

// none asserts that no datagram arrives within d.
func (n *notifySocket) none(d time.Duration) {
	require.NoError(n.t, n.conn.SetReadDeadline(time.Now().Add(d)))
	buf := make([]byte, 256)
	c, _, err := n.conn.ReadFrom(buf)
	require.Error(n.t, err, "unexpected notification %q", string(buf[:c]))
}

func noAddr() string { return "" }
