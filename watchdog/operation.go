package watchdog

import "fmt"

// Operation is one of the control operations exposed under /api.
type Operation string

const (
	OpPing          Operation = "ping"
	OpShutdown      Operation = "shutdown"
	OpRestart       Operation = "restart"
	OpEnableNotify  Operation = "enableNotify"
	OpDisableNotify Operation = "disableNotify"
)

// Operations lists every control operation.
var Operations = []Operation{OpPing, OpShutdown, OpRestart, OpEnableNotify, OpDisableNotify}

func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Path is the URL path the operation is served on.
func (o Operation) Path() string { return "/api/" + string(o) }

// Reply is the fixed response body for the operation.
func (o Operation) Reply() string {
	if o == OpPing {
		return "pong"
	}
	return "ok"
}
