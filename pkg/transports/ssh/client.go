package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over a single SSH connection.
type Client struct {
	config *Config

	mu          sync.RWMutex
	client      *ssh.Client
	closeAgent  func() error
	stopKeep    chan struct{}
	connectedAt time.Time
}

// NewClient creates a client; it does not connect.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes an SSH connection to the remote host.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, closeAgent, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		resultCh <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = closeAgent()
		// Close a connection that completes after we gave up.
		go func() {
			if r := <-resultCh; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case r := <-resultCh:
		if r.err != nil {
			_ = closeAgent()
			return &TransportError{
				Op:          "connect",
				Err:         r.err,
				IsTemporary: !isAuthError(r.err),
				IsAuthError: isAuthError(r.err),
			}
		}
		c.client = r.client
		c.closeAgent = closeAgent
		c.connectedAt = time.Now()
	}

	if c.config.KeepAliveInterval > 0 {
		c.stopKeep = make(chan struct{})
		go c.keepAlive(c.client, c.stopKeep)
	}

	log.Info().Str("address", address).Msg("SSH connection established")
	return nil
}

// Close closes the SSH connection and releases all resources.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	if c.stopKeep != nil {
		close(c.stopKeep)
		c.stopKeep = nil
	}
	err := c.client.Close()
	c.client = nil
	if c.closeAgent != nil {
		_ = c.closeAgent()
		c.closeAgent = nil
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// ConnectedAt returns when the connection was established.
func (c *Client) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// Run executes cmd in a new session. Cancelling ctx signals the remote
// process and returns the context error.
func (c *Client) Run(ctx context.Context, cmd string) (*ExecResult, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err), IsTemporary: true}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.Debug().Str("command", cmd).Msg("executing command")
	start := time.Now()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- session.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Signal(ssh.SIGKILL)
		return nil, &TransportError{Op: "exec", Err: ctx.Err()}
	case runErr = <-doneCh:
	}

	result := &ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			log.Debug().Str("command", cmd).Int("exit_code", result.ExitCode).Msg("command failed")
			return result, nil
		}
		return nil, &TransportError{Op: "exec", Err: runErr, IsTemporary: true}
	}

	log.Debug().Str("command", cmd).Dur("duration", result.Duration).Msg("command completed")
	return result, nil
}

// UploadFile uploads a single file over SFTP.
func (c *Client) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	sshClient, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return &TransportError{Op: "sftp-init", Err: fmt.Errorf("failed to create SFTP client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err)}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("failed to set file permissions: %w", err)}
		}
	}

	log.Debug().Str("local", localPath).Str("remote", remotePath).Int64("bytes", written).Msg("file uploaded")
	return nil
}

func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, &TransportError{Op: "get-client", Err: fmt.Errorf("not connected")}
	}
	return c.client, nil
}

// keepAlive sends keep-alive requests until stop is closed or one fails.
func (c *Client) keepAlive(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.Warn().Err(err).Msg("keep-alive failed")
				return
			}
		}
	}
}

// copyWithContext copies src to dst, checking ctx between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
