// Package generation is the boundary to structured-output text generation.
// Callers describe the result they want as a Go type; the schema is derived
// from the type and the backend's answer is validated against it before it
// reaches the caller.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/kazz187/tasksmith/pkg/cerr"
)

// Request is a single structured-output call.
type Request struct {
	// Name identifies the result contract, e.g. "category_candidate".
	Name         string
	Schema       *jsonschema.Schema
	Conversation Conversation
}

// Backend returns JSON conforming to req.Schema.
type Backend interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
	Name() string
}

// Validator is implemented by result contracts with rules beyond the schema.
type Validator interface {
	Validate() error
}

var ErrSchemaViolation = errors.New("generated value violates schema")

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

var reflector = &jsonschema.Reflector{
	DoNotReference:             true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  false,
	RequiredFromJSONSchemaTags: false,
}

// SchemaFor reflects the JSON schema of T once and caches it.
func SchemaFor[T any]() *jsonschema.Schema {
	t := reflect.TypeFor[T]()
	if s, ok := schemaCache.Load(t); ok {
		return s.(*jsonschema.Schema)
	}
	s := reflector.ReflectFromType(t)
	s.Version = ""
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*jsonschema.Schema)
}

// Generate asks b for a T. Backend failures are Unavailable; answers that do
// not decode, miss required fields or fail Validate are Internal errors
// wrapping ErrSchemaViolation.
func Generate[T any](ctx context.Context, b Backend, name string, conv Conversation) (T, error) {
	var zero T
	req := Request{Name: name, Schema: SchemaFor[T](), Conversation: conv}

	start := time.Now()
	raw, err := b.Generate(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, cerr.NewError(cerr.Canceled, "generation canceled", errors.Join(ctxErr, err))
		}
		if e, ok := cerr.As(err); ok {
			return zero, e
		}
		if errors.Is(err, ErrSchemaViolation) {
			return zero, cerr.NewError(cerr.Internal, "generation returned an invalid value",
				fmt.Errorf("%s: %s: %w", b.Name(), name, err))
		}
		return zero, cerr.NewError(cerr.Unavailable, "generation backend unavailable",
			fmt.Errorf("%s: %s: %w", b.Name(), name, err))
	}
	slog.DebugContext(ctx, "generation finished",
		"backend", b.Name(), "contract", name, "turns", conv.Len(), "duration", time.Since(start))

	v, err := decode[T](raw, req.Schema)
	if err != nil {
		return zero, cerr.NewError(cerr.Internal, "generation returned an invalid value",
			fmt.Errorf("%s: %s: %w", b.Name(), name, err))
	}
	return v, nil
}

func decode[T any](raw []byte, schema *jsonschema.Schema) (T, error) {
	var zero T
	raw = bytes.TrimSpace(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("%w: not a JSON object: %v", ErrSchemaViolation, err)
	}
	for _, req := range schema.Required {
		if v, ok := fields[req]; !ok || string(v) == "null" {
			return zero, fmt.Errorf("%w: missing required field %q", ErrSchemaViolation, req)
		}
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}
	return v, nil
}
