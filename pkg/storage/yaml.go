package storage

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadYAML decodes the document at path into a new T.
func ReadYAML[T any](ctx context.Context, s Storage, path string) (*T, error) {
	data, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &v, nil
}

func WriteYAML(ctx context.Context, s Storage, path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return s.Write(ctx, path, data)
}

// ListYAML decodes every .yaml document directly under prefix. Documents that
// fail to decode are reported through skip and left out of the result.
func ListYAML[T any](ctx context.Context, s Storage, prefix string, skip func(path string, err error)) ([]*T, error) {
	paths, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(paths))
	for _, p := range paths {
		if !strings.HasSuffix(p, ".yaml") {
			continue
		}
		v, err := ReadYAML[T](ctx, s, p)
		if err != nil {
			if skip != nil {
				skip(p, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
