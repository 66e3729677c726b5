package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Severity of a validation problem.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Problem is one issue found while validating the store.
type Problem struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s %s: %s", p.Severity, p.Kind, p.Name, p.Message)
}

// Report is the result of validating every document in the store.
type Report struct {
	Profiles []string  `json:"profiles"`
	Traits   []string  `json:"traits"`
	Problems []Problem `json:"problems"`
}

// HasErrors reports whether any problem is an error.
func (r *Report) HasErrors() bool {
	for _, p := range r.Problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate loads every profile and trait and collects all problems instead of
// stopping at the first. Profiles referencing missing traits are warnings.
func (s *FileStore) Validate(ctx context.Context) (*Report, error) {
	profiles, err := s.ListProfiles()
	if err != nil {
		return nil, err
	}
	traits, err := s.ListTraits()
	if err != nil {
		return nil, err
	}

	report := &Report{Profiles: profiles, Traits: traits, Problems: []Problem{}}
	known := make(map[string]bool, len(traits))

	for _, name := range traits {
		if _, err := s.LoadTrait(ctx, name); err != nil {
			report.Problems = append(report.Problems, Problem{
				Severity: SeverityError, Kind: "trait", Name: name, Message: err.Error(),
			})
			continue
		}
		known[name] = true
	}

	for _, name := range profiles {
		profile, err := s.LoadProfile(ctx, name)
		if err != nil {
			report.Problems = append(report.Problems, Problem{
				Severity: SeverityError, Kind: "profile", Name: name, Message: err.Error(),
			})
			continue
		}
		for _, t := range profile.Traits {
			if !known[t] {
				report.Problems = append(report.Problems, Problem{
					Severity: SeverityWarning, Kind: "profile", Name: name,
					Message: fmt.Sprintf("trait %q is missing or invalid", t),
				})
			}
		}
	}

	return report, nil
}

// Watch re-validates the store whenever a document changes and hands the
// report to onChange. It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func(*Report)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, dir := range []string{ProfilesDir, TraitsDir} {
		path := filepath.Join(s.root, dir)
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("nothing to watch under %s", s.root)
	}

	s.logger.Info().Int("paths", watched).Msg("Started watching configuration")

	// Debounce bursts of editor writes.
	var timer *time.Timer
	delay := 500 * time.Millisecond
	revalidate := func() {
		report, err := s.Validate(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to validate configuration")
			return
		}
		onChange(report)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if _, ok := formatFor(event.Name); !ok || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			s.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Configuration changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, revalidate)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
