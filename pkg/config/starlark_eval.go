package config

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// fileOptions allows top-level control flow so documents can branch on host.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// StarlarkEvaluator executes Starlark profile and trait files.
//
// A Starlark document defines its keys as globals:
//
//	description = "Workstation"
//	traits = ["base"]
//	pillars = {"developer": [], "gaming": ["steam"]}
//	if host.arch == "arm64":
//	    bootstrap = False
//
// The predeclared host describes the machine being provisioned and file holds
// the document path. Globals starting with an underscore are private.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

func (se *StarlarkEvaluator) decode(ctx context.Context, filename string, src []byte) (orderedMap, error) {
	globals, err := se.Evaluate(ctx, filename, src, hostInput(filename))
	if err != nil {
		return nil, err
	}

	// Document keys come out in a fixed order; pillar order lives inside the dict.
	m := orderedMap{}
	for _, key := range []string{keyName, keyDescription, "bootstrap", keyTraits, "pillars", "theme"} {
		val, ok := globals[key]
		if !ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		m = append(m, field{Key: key, Value: goVal})
	}
	for name := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := m.get(name); !ok {
			return nil, fmt.Errorf("unknown key %q", name)
		}
	}
	return m, nil
}

// Evaluate executes a script with the given predeclared input and returns
// its globals. The script is cancelled when ctx ends or the timeout expires.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, src []byte, input map[string]interface{}) (starlark.StringDict, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "mythos",
		Print: func(_ *starlark.Thread, msg string) {
			// Documents are declarative; print output is discarded.
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	type result struct {
		globals starlark.StringDict
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		globals, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, predeclared)
		resultCh <- result{globals: globals, err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("evaluation timeout")
		<-resultCh
		return nil, fmt.Errorf("starlark execution timeout after %v", se.timeout)
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("starlark execution failed: %w", r.err)
		}
		return r.globals, nil
	}
}

// hostInput describes the local machine to Starlark documents.
func hostInput(filename string) map[string]interface{} {
	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"host": map[string]interface{}{
			"os":       runtime.GOOS,
			"arch":     runtime.GOARCH,
			"hostname": hostname,
		},
		"file": filename,
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
// Maps become structs so documents can use attribute access.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		fields := make(starlark.StringDict, len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			fields[k] = starlarkVal
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to an orderedMap value.
// Dicts keep insertion order.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		m := make(orderedMap, 0, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			m = append(m, field{Key: string(key), Value: value})
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
