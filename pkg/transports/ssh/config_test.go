package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")

	if config.Host != "example.com" {
		t.Errorf("expected host 'example.com', got '%s'", config.Host)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("expected auth method 'key', got '%s'", config.AuthMethod)
	}
	if !config.StrictHostKeyChecking {
		t.Error("expected strict host key checking by default")
	}
	if config.ConnectionTimeout != 30*time.Second {
		t.Errorf("expected connection timeout 30s, got %v", config.ConnectionTimeout)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
		},
		{
			name:        "missing host",
			modifyFunc:  func(c *Config) { c.Host = "" },
			expectError: true,
			errorMsg:    "host is required",
		},
		{
			name:        "invalid port",
			modifyFunc:  func(c *Config) { c.Port = 0 },
			expectError: true,
			errorMsg:    "invalid port",
		},
		{
			name:        "missing user",
			modifyFunc:  func(c *Config) { c.User = "" },
			expectError: true,
			errorMsg:    "user is required",
		},
		{
			name: "password auth without password",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = ""
			},
			expectError: true,
			errorMsg:    "password is required",
		},
		{
			name: "key auth with missing key",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodKey
				c.PrivateKeyPath = "/nonexistent/key"
			},
			expectError: true,
			errorMsg:    "private key file not found",
		},
		{
			name: "unknown auth method",
			modifyFunc: func(c *Config) {
				c.AuthMethod = "kerberos"
			},
			expectError: true,
			errorMsg:    "unsupported auth method",
		},
		{
			name: "invalid connection timeout",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
				c.ConnectionTimeout = 0
			},
			expectError: true,
			errorMsg:    "connection timeout must be positive",
		},
		{
			name: "strict checking without known_hosts",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
				c.KnownHostsPath = ""
			},
			expectError: true,
			errorMsg:    "known_hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("example.com", "testuser")
			tt.modifyFunc(config)

			err := config.Validate()

			if tt.expectError && err == nil {
				t.Fatalf("expected error containing '%s', got nil", tt.errorMsg)
			}
			if !tt.expectError && err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if tt.expectError && !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing '%s', got '%v'", tt.errorMsg, err)
			}
		})
	}
}

func TestConfigAgentRequiresSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	config := DefaultConfig("example.com", "testuser")
	config.AuthMethod = AuthMethodAgent
	if err := config.Validate(); err == nil || !strings.Contains(err.Error(), "SSH_AUTH_SOCK") {
		t.Errorf("expected SSH_AUTH_SOCK error, got %v", err)
	}
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.Port = 2222

	if address := config.Address(); address != "example.com:2222" {
		t.Errorf("expected address 'example.com:2222', got '%s'", address)
	}

	config.Host = "::1"
	if address := config.Address(); address != "[::1]:2222" {
		t.Errorf("expected bracketed IPv6 address, got '%s'", address)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target   string
		user     string
		host     string
		port     int
		hasError bool
	}{
		{target: "box.lan", host: "box.lan"},
		{target: "root@box.lan", user: "root", host: "box.lan"},
		{target: "root@box.lan:2222", user: "root", host: "box.lan", port: 2222},
		{target: "10.0.0.5:22", host: "10.0.0.5", port: 22},
		{target: "root@", hasError: true},
		{target: "box:port", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			user, host, port, err := ParseTarget(tt.target)
			if tt.hasError {
				if err == nil {
					t.Errorf("expected error for %q", tt.target)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user != tt.user || host != tt.host || port != tt.port {
				t.Errorf("ParseTarget(%q) = %q, %q, %d", tt.target, user, host, port)
			}
		})
	}
}

func TestBuildSSHClientConfig(t *testing.T) {
	t.Run("password authentication", func(t *testing.T) {
		config := DefaultConfig("example.com", "testuser")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.StrictHostKeyChecking = false

		clientConfig, closer, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closer()

		if clientConfig.User != "testuser" {
			t.Errorf("expected user 'testuser', got '%s'", clientConfig.User)
		}
		// password plus keyboard-interactive
		if len(clientConfig.Auth) != 2 {
			t.Errorf("expected 2 auth methods, got %d", len(clientConfig.Auth))
		}
		if clientConfig.Timeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", clientConfig.Timeout)
		}
	})

	t.Run("key authentication with valid key", func(t *testing.T) {
		keyPath := writeTestKey(t)

		config := DefaultConfig("example.com", "testuser")
		config.AuthMethod = AuthMethodKey
		config.PrivateKeyPath = keyPath
		config.StrictHostKeyChecking = false

		clientConfig, closer, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closer()

		if len(clientConfig.Auth) != 1 {
			t.Errorf("expected 1 auth method, got %d", len(clientConfig.Auth))
		}
	})

	t.Run("strict checking with missing known_hosts", func(t *testing.T) {
		config := DefaultConfig("example.com", "testuser")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")

		if _, _, err := config.BuildSSHClientConfig(); err == nil {
			t.Error("expected error for missing known_hosts, got nil")
		}
	})
}

// writeTestKey writes an unencrypted ED25519 private key and returns its path.
func writeTestKey(t *testing.T) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "test_key")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	return keyPath
}
