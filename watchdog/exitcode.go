package watchdog

import "strconv"

// ExitCode is the status the watchdog process exits with.
// Supervisors map these to restart policy, e.g. RestartForceExitStatus=1002 in systemd.
type ExitCode int

const (
	ExitOK                ExitCode = 0
	ExitUncaughtException ExitCode = 1001
	ExitRestart           ExitCode = 1002

	// ExitNetwork is reserved for a network failure path. Nothing returns it yet.
	ExitNetwork ExitCode = 1003
)

func (c ExitCode) String() string {
	switch c {
	case ExitOK:
		return "ok"
	case ExitUncaughtException:
		return "uncaught_exception"
	case ExitRestart:
		return "restart"
	case ExitNetwork:
		return "network"
	}
	return "exit_code_" + strconv.Itoa(int(c))
}
