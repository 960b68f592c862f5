package cerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/tasksmith/pkg/storage"
)

// StorageOp names the repository operation that touched the store.
type StorageOp string

const (
	StorageRead  StorageOp = "read"
	StorageList  StorageOp = "list"
	StorageWrite StorageOp = "write"
)

// WrapStorageError classifies a store failure on target. A missing object is
// NotFound for reads only; a write that finds nothing is a server fault.
// Cancellation and deadlines keep their own codes so streams end quietly.
func WrapStorageError(op StorageOp, target string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewError(Canceled, "connection closed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(DeadlineExceeded, fmt.Sprintf("%s %s timed out", op, target), err)
	case op == StorageRead && errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}
