package cli

import "fmt"

// ExitCode is the process exit code a command maps its failure to.
type ExitCode int

const (
	ExitSuccess       ExitCode = 0
	ExitGeneralError  ExitCode = 1
	ExitUsageError    ExitCode = 2
	ExitGeometryError ExitCode = 3
	ExitIOError       ExitCode = 4
)

// CLIError carries an exit code alongside the error so Execute can translate
// command failures into meaningful process exits.
type CLIError struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error { return e.Err }

// NewCLIError creates a CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a CLIError wrapping an underlying error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
