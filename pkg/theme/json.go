package theme

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/mythos-linux/mythos/pkg/engine"
)

// JSONRenderer writes one JSON object per event, for scripts and CI logs.
type JSONRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewJSONRenderer creates a renderer writing to out.
func NewJSONRenderer(out io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(out)}
}

// Publish implements engine.EventSink.
func (r *JSONRenderer) Publish(_ context.Context, event *engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = r.enc.Encode(event)
}

// Err returns the first encoding or write error, if any.
func (r *JSONRenderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
