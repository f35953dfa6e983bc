package handlers

import (
	"errors"
	"fmt"
)

// ErrIllegalState is raised by CancelRun against a run already in a
// terminal status.
var ErrIllegalState = errors.New("illegal state")

// execErrorCode is the last_error.code value recorded whenever ExecRun (or
// a chunk's Err field) reports a failure.
const execErrorCode = "EXEC_ERROR"

func illegalStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}
