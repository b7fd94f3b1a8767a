// Package artifacts stores extraction outputs and debug dumps in a local
// directory or an S3 bucket.
package artifacts

import (
	"context"
	"errors"
	"io"
)

var ErrUnknownStorage = errors.New("unknown artifacts storage")

type Storage interface {
	Save(ctx context.Context, key string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	// Location describes where key lives, for diagnostics.
	Location(key string) string
}
