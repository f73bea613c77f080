package sdnotify

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// DefaultPingInterval is used when the supervisor sets no watchdog timeout.
const DefaultPingInterval = 10 * time.Second

// PingInterval returns half of the supervisor's watchdog timeout, read from WATCHDOG_USEC.
// WATCHDOG_PID is honoured: a timeout addressed to another process is ignored.
// If no timeout applies, DefaultPingInterval is returned. A malformed WATCHDOG_USEC
// also yields DefaultPingInterval, together with an error describing it.
func PingInterval() (time.Duration, error) {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return DefaultPingInterval, fmt.Errorf("reading watchdog timeout: %w", err)
	}
	if timeout == 0 {
		return DefaultPingInterval, nil
	}
	return timeout / 2, nil
}
