package sdnotify

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// EnvNotifySocket is the environment variable holding the supervisor's notification address.
const EnvNotifySocket = "NOTIFY_SOCKET"

// Notification tokens.
const (
	Ready    = daemon.SdNotifyReady
	Watchdog = daemon.SdNotifyWatchdog
)

// SendTimeout bounds a single send. A supervisor that stops reading fills its
// receive queue, after which sends fail instead of blocking.
const SendTimeout = 50 * time.Millisecond

// ErrNoAddr is returned by Dial when no notification address is configured.
var ErrNoAddr = errors.New("no notification socket address")

// Conn is a connected datagram socket to a supervisor's notification endpoint.
// A Conn is not safe for concurrent use; callers serialize access.
type Conn struct {
	addr string
	conn *net.UnixConn
}

// LookupFunc returns the configured notification address, or "" if there is none.
type LookupFunc func() string

// EnvLookup reads the address from NOTIFY_SOCKET.
func EnvLookup() string {
	return os.Getenv(EnvNotifySocket)
}

// Dial connects to the notification socket at addr.
func Dial(addr string) (*Conn, error) {
	if addr == "" {
		return nil, ErrNoAddr
	}
	name := addr
	if name[0] == '@' {
		name = "\x00" + name[1:]
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("dialing notification socket %q: %w", addr, err)
	}
	return &Conn{addr: addr, conn: conn}, nil
}

// Addr returns the address as it was configured, including any '@' prefix.
func (c *Conn) Addr() string { return c.addr }

// Send writes a single notification datagram, giving up after SendTimeout.
func (c *Conn) Send(state string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(SendTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	n, err := c.conn.Write([]byte(state))
	if err != nil {
		return fmt.Errorf("sending %q: %w", state, err)
	}
	if n != len(state) {
		return fmt.Errorf("sending %q: short write of %d bytes", state, n)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
