package steps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Directory names under the repository root.
const (
	BootstrapDir = "bootstrap"
	PillarsDir   = "pillars"
)

// DefaultBootstrap is the bootstrap script used when none is configured.
const DefaultBootstrap = "arch"

// Step file extensions, in lookup priority order.
const (
	ExtScript = ".sh"
	ExtWasm   = ".wasm"
)

var stepExtensions = []string{ExtScript, ExtWasm}

// DirRegistry discovers steps on disk. It implements engine.StepRegistry.
//
//	<root>/bootstrap/<name>.{sh,wasm}
//	<root>/pillars/<pillar>/<step>.{sh,wasm}
//
// A step ID is the file name without extension. Steps of a pillar are
// ordered by ID, never by directory listing order.
type DirRegistry struct {
	root      string
	bootstrap string
	logger    zerolog.Logger
}

// NewDirRegistry creates a registry rooted at root. An empty bootstrap name
// selects DefaultBootstrap.
func NewDirRegistry(root, bootstrap string, logger zerolog.Logger) *DirRegistry {
	if bootstrap == "" {
		bootstrap = DefaultBootstrap
	}
	return &DirRegistry{
		root:      root,
		bootstrap: bootstrap,
		logger:    logger.With().Str("component", "step-registry").Logger(),
	}
}

// Root returns the repository root.
func (r *DirRegistry) Root() string {
	return r.root
}

// Bootstrap returns the bootstrap step. A missing script is not an error
// here; the runner reports it as a failed outcome.
func (r *DirRegistry) Bootstrap() (engine.Step, error) {
	if err := checkID(r.bootstrap); err != nil {
		return engine.Step{}, engine.NewValidationError(string(engine.UnitBootstrap), err)
	}
	return engine.Step{
		ID:          r.bootstrap,
		Description: bootstrapDescription(r.bootstrap),
		Source:      r.locate(filepath.Join(r.root, BootstrapDir), r.bootstrap),
	}, nil
}

// Steps returns every step of a pillar sorted by ID.
func (r *DirRegistry) Steps(pillar string) ([]engine.Step, error) {
	dir, err := r.pillarDir(pillar)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pillar %s: %w", pillar, err)
	}

	// One step per ID; .sh wins over .wasm when both exist.
	byID := make(map[string]engine.Step)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		rank := extRank(ext)
		if rank < 0 {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if existing, ok := byID[id]; ok && extRank(filepath.Ext(existing.Source)) <= rank {
			continue
		}
		byID[id] = engine.Step{
			ID:     id,
			Pillar: pillar,
			Source: filepath.Join(dir, entry.Name()),
		}
	}

	steps := make([]engine.Step, 0, len(byID))
	for _, step := range byID {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].ID < steps[j].ID
	})

	r.logger.Debug().Str("pillar", pillar).Int("steps", len(steps)).Msg("Discovered pillar steps")
	return steps, nil
}

// Resolve maps explicit step IDs to steps in the given order. IDs without a
// file still resolve to the expected script path so the runner reports them.
func (r *DirRegistry) Resolve(pillar string, ids []string) ([]engine.Step, error) {
	dir, err := r.pillarDir(pillar)
	if err != nil {
		return nil, err
	}

	steps := make([]engine.Step, 0, len(ids))
	for _, id := range ids {
		if err := checkID(id); err != nil {
			return nil, engine.NewValidationError(pillar, err)
		}
		steps = append(steps, engine.Step{
			ID:     id,
			Pillar: pillar,
			Source: r.locate(dir, id),
		})
	}
	return steps, nil
}

// Pillars lists the pillar directories, sorted.
func (r *DirRegistry) Pillars() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, PillarsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *DirRegistry) pillarDir(pillar string) (string, error) {
	if err := checkID(pillar); err != nil {
		return "", engine.NewValidationError(pillar, err)
	}
	dir := filepath.Join(r.root, PillarsDir, pillar)
	info, err := os.Stat(dir)
	if err != nil {
		return "", engine.NewPillarNotFoundError(pillar, err).WithDetail("dir", dir)
	}
	if !info.IsDir() {
		return "", engine.NewPillarNotFoundError(pillar, fmt.Errorf("%s is not a directory", dir))
	}
	return dir, nil
}

// locate returns the first existing step file for id, or the script path.
func (r *DirRegistry) locate(dir, id string) string {
	for _, ext := range stepExtensions {
		path := filepath.Join(dir, id+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return filepath.Join(dir, id+ExtScript)
}

func extRank(ext string) int {
	for i, e := range stepExtensions {
		if e == ext {
			return i
		}
	}
	return -1
}

func checkID(id string) error {
	if id == "" {
		return errors.New("identifier is empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid identifier %q", id)
	}
	return nil
}

// bootstrapDescription turns "arch" into "Arch base system setup".
func bootstrapDescription(name string) string {
	return strings.ToUpper(name[:1]) + name[1:] + " base system setup"
}
