package commands

import "fmt"

// Process exit codes.
const (
	CodeCompleted = 0
	CodeError     = 1
	CodeAborted   = 2
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
