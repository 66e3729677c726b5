package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasmConfig configures a WasmRunner.
type WasmConfig struct {
	// MemoryLimitPages is the maximum memory in 64KiB pages.
	// Default is 256 pages (16MB).
	MemoryLimitPages uint32

	// Root is exported to modules as MYTHOS_ROOT.
	Root string

	// Output, when set, receives a live copy of stdout and stderr.
	Output io.Writer
}

// WasmRunner runs WASI command modules as steps. It implements
// engine.StepRunner. The step's directory is mounted read-only at /step and
// the module's _start function is the entry point.
type WasmRunner struct {
	config WasmConfig
	logger zerolog.Logger

	mu      sync.Mutex
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

// NewWasmRunner creates a WASI runner. The runtime is created lazily on the
// first wasm step.
func NewWasmRunner(cfg WasmConfig, logger zerolog.Logger) *WasmRunner {
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256
	}
	return &WasmRunner{
		config: cfg,
		logger: logger.With().Str("component", "wasm-runner").Logger(),
		cache:  wazero.NewCompilationCache(),
	}
}

func (r *WasmRunner) ensureRuntime(ctx context.Context) (wazero.Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runtime != nil {
		return r.runtime, nil
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(r.config.MemoryLimitPages).
		WithCloseOnContextDone(true).
		WithCompilationCache(r.cache)

	// The runtime outlives any single step context.
	rt := wazero.NewRuntimeWithConfig(context.WithoutCancel(ctx), runtimeConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	r.runtime = rt
	return rt, nil
}

// Run instantiates the module, which runs _start to completion.
func (r *WasmRunner) Run(ctx context.Context, step engine.Step) engine.Outcome {
	wasmBytes, err := os.ReadFile(step.Source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine.Failed(fmt.Sprintf("module not found: %s", step.Source))
		}
		return engine.Failed(fmt.Sprintf("failed to read module: %v", err))
	}

	rt, err := r.ensureRuntime(ctx)
	if err != nil {
		return engine.Failed(err.Error())
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return engine.Failed(fmt.Sprintf("failed to compile module: %v", err))
	}
	defer func() { _ = compiled.Close(context.WithoutCancel(ctx)) }()

	var stdout, stderr bytes.Buffer
	var outW, errW io.Writer = &stdout, &stderr
	if r.config.Output != nil {
		outW = io.MultiWriter(&stdout, r.config.Output)
		errW = io.MultiWriter(&stderr, r.config.Output)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(step.ID).
		WithStdout(outW).
		WithStderr(errW).
		WithSysWalltime().
		WithSysNanotime().
		WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(filepath.Dir(step.Source), "/step"))
	for _, kv := range stepEnv(step, r.config.Root) {
		k, v, _ := strings.Cut(kv, "=")
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	r.logger.Debug().Str("step", step.Key()).Str("module", step.Source).Msg("Running module")

	mod, err := rt.InstantiateModule(ctx, compiled, moduleConfig)
	if mod != nil {
		_ = mod.Close(context.WithoutCancel(ctx))
	}
	if err == nil {
		return engine.Succeeded()
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return engine.Succeeded()
		}
		outcome := engine.Failed(diagnostic(stdout.Bytes(), stderr.Bytes(), fmt.Sprintf("exit status %d", exitErr.ExitCode())))
		outcome.ExitCode = int(exitErr.ExitCode())
		return outcome
	}

	outcome := engine.Failed(diagnostic(stdout.Bytes(), stderr.Bytes(), err.Error()))
	outcome.ExitCode = -1
	return outcome
}

// Close releases the runtime and compilation cache.
func (r *WasmRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runtime != nil {
		if err := r.runtime.Close(ctx); err != nil {
			return fmt.Errorf("failed to close WASM runtime: %w", err)
		}
		r.runtime = nil
	}
	return r.cache.Close(ctx)
}
