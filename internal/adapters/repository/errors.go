package repository

import (
	"errors"
	"fmt"

	"github.com/okian/movers/internal/domain/model"
)

// Sentinel kinds for repository errors not shared with the domain.
var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrClosed         = errors.New("store closed")
)

// Unavailable marks err as a backend failure of op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// NotFound reports a missing record of kind with id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}
