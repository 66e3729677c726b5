package config

import (
	"context"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// cueDecoder evaluates a CUE file and walks its regular fields in
// declaration order. Definitions and hidden fields are not part of the
// document, so CUE files may declare their own schema alongside the data.
type cueDecoder struct {
	ctx *cue.Context
}

func newCUEDecoder() *cueDecoder {
	return &cueDecoder{ctx: cuecontext.New()}
}

func (d *cueDecoder) decode(_ context.Context, filename string, src []byte) (orderedMap, error) {
	val := d.ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compile: %s", errors.Details(err, nil))
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate: %s", errors.Details(err, nil))
	}

	v, err := fromCUEValue(val)
	if err != nil {
		return nil, err
	}
	m, ok := v.(orderedMap)
	if !ok {
		return nil, fmt.Errorf("top level must be a struct, got %s", typeName(v))
	}
	return m, nil
}

func fromCUEValue(v cue.Value) (interface{}, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		m := orderedMap{}
		for iter.Next() {
			val, err := fromCUEValue(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Selector(), err)
			}
			m = append(m, field{Key: iter.Selector().Unquoted(), Value: val})
		}
		return m, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		list := []interface{}{}
		for iter.Next() {
			val, err := fromCUEValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%s: unsupported CUE kind %s", v.Path(), v.Kind())
	}
}
