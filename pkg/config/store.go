package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Directory names under the store root.
const (
	ProfilesDir = "profiles"
	TraitsDir   = "traits"
)

// StoreConfig configures a FileStore.
type StoreConfig struct {
	// Root is the directory holding profiles/ and traits/.
	Root string `yaml:"root" validate:"required"`

	// EvalTimeout bounds Starlark evaluation of a single document.
	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

// FileStore loads profiles and traits from a directory tree. It implements
// engine.ConfigStore.
//
//	<root>/profiles/<name>.{yaml,yml,toml,cue,star}
//	<root>/traits/<name>.{yaml,yml,toml,cue,star}
//
// Extensions are probed in that order and the first existing file wins.
type FileStore struct {
	root        string
	evalTimeout time.Duration
	validator   *documentValidator
	logger      zerolog.Logger
}

// NewFileStore creates a store rooted at cfg.Root.
func NewFileStore(cfg StoreConfig, logger zerolog.Logger) *FileStore {
	return &FileStore{
		root:        cfg.Root,
		evalTimeout: cfg.EvalTimeout,
		validator:   newDocumentValidator(),
		logger:      logger.With().Str("component", "config-store").Logger(),
	}
}

// Root returns the store root directory.
func (s *FileStore) Root() string {
	return s.root
}

// LoadProfile loads a profile by name.
func (s *FileStore) LoadProfile(ctx context.Context, name string) (*engine.Profile, error) {
	if err := checkName(name); err != nil {
		return nil, engine.NewValidationError(name, err)
	}

	path, err := s.find(ProfilesDir, name)
	if err != nil {
		return nil, engine.NewConfigNotFoundError(name, err).WithDetail("dir", filepath.Join(s.root, ProfilesDir))
	}

	doc, err := s.decodeFile(ctx, path, name, true)
	if err != nil {
		return nil, engine.NewValidationError(path, err)
	}

	profile := &engine.Profile{
		Name:        name,
		Description: doc.Description,
		Settings:    doc.Settings,
		Traits:      doc.Traits,
		Source:      path,
	}
	if err := s.validator.profile(profile); err != nil {
		return nil, engine.NewValidationError(path, err)
	}

	s.logger.Debug().Str("profile", name).Str("source", path).Msg("Profile loaded")
	return profile, nil
}

// LoadTrait loads a trait by name. A missing trait yields an empty trait and
// a warning-class error.
func (s *FileStore) LoadTrait(ctx context.Context, name string) (*engine.Trait, error) {
	if err := checkName(name); err != nil {
		return nil, engine.NewValidationError(name, err)
	}

	path, err := s.find(TraitsDir, name)
	if err != nil {
		return &engine.Trait{Name: name}, engine.NewTraitNotFoundError(name, err)
	}

	doc, err := s.decodeFile(ctx, path, name, false)
	if err != nil {
		return nil, engine.NewValidationError(path, err)
	}

	trait := &engine.Trait{
		Name:     name,
		Settings: doc.Settings,
		Source:   path,
	}
	if err := s.validator.trait(trait); err != nil {
		return nil, engine.NewValidationError(path, err)
	}

	s.logger.Debug().Str("trait", name).Str("source", path).Msg("Trait loaded")
	return trait, nil
}

// ListProfiles returns the names of every profile, sorted.
func (s *FileStore) ListProfiles() ([]string, error) {
	return s.list(ProfilesDir)
}

// ListTraits returns the names of every trait, sorted.
func (s *FileStore) ListTraits() ([]string, error) {
	return s.list(TraitsDir)
}

// find returns the first existing file for name in dir.
func (s *FileStore) find(dir, name string) (string, error) {
	base := filepath.Join(s.root, dir, name)
	for _, e := range extensions {
		path := base + e.ext
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s/%s: %w", dir, name, fs.ErrNotExist)
}

func (s *FileStore) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := formatFor(entry.Name()); !ok {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) decodeFile(ctx context.Context, path, name string, allowTraits bool) (*document, error) {
	format, ok := formatFor(path)
	if !ok {
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
	dec, err := decoderFor(format, s.evalTimeout)
	if err != nil {
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	tree, err := dec.decode(ctx, path, src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return buildDocument(name, tree, allowTraits)
}

// checkName rejects names that would escape the store directories.
func checkName(name string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}
