// Package generationtest provides a scripted generation.Backend for tests.
package generationtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kazz187/tasksmith/internal/generation"
)

// Handler answers one request. It may return []byte or string (sent as is)
// or any other value (marshaled to JSON).
type Handler func(req generation.Request) (any, error)

// Backend dispatches requests to handlers registered per contract name and
// records every request it receives.
type Backend struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []generation.Request
}

func New() *Backend {
	return &Backend{handlers: make(map[string]Handler)}
}

func (b *Backend) On(name string, h Handler) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
	return b
}

// Queue answers successive requests for name with values in order. The
// last value repeats once the queue is drained.
func (b *Backend) Queue(name string, values ...any) *Backend {
	var (
		mu sync.Mutex
		i  int
	)
	return b.On(name, func(generation.Request) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[min(i, len(values)-1)]
		i++
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	})
}

// Always answers every request for name with v.
func (b *Backend) Always(name string, v any) *Backend {
	return b.Queue(name, v)
}

func (b *Backend) Name() string { return "scripted" }

func (b *Backend) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	h, ok := b.handlers[req.Name]
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no handler for %q", req.Name)
	}
	v, err := h(req)
	if err != nil {
		return nil, err
	}
	switch raw := v.(type) {
	case []byte:
		return raw, nil
	case string:
		return []byte(raw), nil
	}
	return json.Marshal(v)
}

// Calls returns the recorded requests for name, or all requests when name is empty.
func (b *Backend) Calls(name string) []generation.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []generation.Request
	for _, c := range b.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
