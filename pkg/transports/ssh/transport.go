// Package ssh runs provisioning steps on a remote machine over SSH, with
// SFTP for copying step files.
package ssh

import (
	"context"
	"time"
)

// Transport is the remote surface used by remote step runners.
type Transport interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Close releases the connection.
	Close() error

	// Run executes cmd and waits for it to exit. A non-zero exit status is
	// reported in the result, not as an error.
	Run(ctx context.Context, cmd string) (*ExecResult, error)

	// UploadFile copies a local file to remotePath, creating parent
	// directories, and sets its mode.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command
	Stdout []byte

	// Stderr is the standard error output from the command
	Stderr []byte

	// ExitCode is the command's exit code
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
