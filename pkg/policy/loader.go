package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/rs/zerolog"
)

// reloadDelay debounces bursts of writes to a watched policy file.
const reloadDelay = 500 * time.Millisecond

// Loader reads failure policies from .rego or .json files.
type Loader struct {
	logger  zerolog.Logger
	cache   map[string]*Policy
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]*Policy),
	}
}

// LoadFile loads and checks a policy. A .json file holds a serialized Policy.
func (l *Loader) LoadFile(filePath string) (*Policy, error) {
	l.mu.RLock()
	if cached, exists := l.cache[filePath]; exists {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	var policy *Policy
	switch filepath.Ext(filePath) {
	case ".rego":
		policy = parseRegoFile(filePath, data)
	case ".json":
		policy, err = parseJSONFile(filePath, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported policy file type: %s", filePath)
	}

	if err := checkModule(policy); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[filePath] = policy
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Str("policy", policy.Name).
		Msg("Policy loaded from file")

	return policy, nil
}

func parseRegoFile(filePath string, data []byte) *Policy {
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(filePath), ".rego"),
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Source:      filePath,
		LoadedAt:    time.Now(),
	}
}

func parseJSONFile(filePath string, data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if policy.Name == "" {
		policy.Name = strings.TrimSuffix(filepath.Base(filePath), ".json")
	}
	if policy.Description == "" {
		policy.Description = extractDescription(policy.Rego)
	}
	policy.Source = filePath
	policy.LoadedAt = time.Now()
	return &policy, nil
}

// checkModule parses the module and verifies its package.
func checkModule(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy %s: %w", policy.Name, err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}
	if got := module.Package.Path.String(); got != "data."+PackageName {
		return fmt.Errorf("policy %s declares package %s, want %s", policy.Name, strings.TrimPrefix(got, "data."), PackageName)
	}
	return nil
}

// extractDescription extracts the first comment block of a Rego module.
func extractDescription(content string) string {
	var description strings.Builder

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if description.Len() > 0 {
					description.WriteString(" ")
				}
				description.WriteString(comment)
			}
		} else if trimmed != "" && description.Len() > 0 {
			break
		}
	}

	return description.String()
}

// Watch reloads the policy at filePath whenever it changes and hands the
// result to reloadFn. Files that fail to load are logged and skipped. The
// watch ends with ctx.
func (l *Loader) Watch(ctx context.Context, filePath string, reloadFn func(*Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filePath, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, filepath.Clean(filePath), reloadFn)

	l.logger.Info().Str("path", filePath).Msg("Started watching policy")
	return nil
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, filePath string, reloadFn func(*Policy) error) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			l.mu.Lock()
			delete(l.cache, filePath)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.reload(filePath, reloadFn); err != nil {
					l.logger.Error().Err(err).Str("path", filePath).Msg("Failed to reload policy")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(filePath string, reloadFn func(*Policy) error) error {
	policy, err := l.LoadFile(filePath)
	if err != nil {
		return err
	}
	if err := reloadFn(policy); err != nil {
		return fmt.Errorf("failed to apply reloaded policy: %w", err)
	}
	l.logger.Info().Str("policy", policy.Name).Msg("Policy reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}

// ClearCache clears the policy cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]*Policy)
	l.logger.Debug().Msg("Policy cache cleared")
}
