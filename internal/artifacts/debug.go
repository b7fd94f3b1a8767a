package artifacts

import (
	"bytes"
	"context"
	"time"
)

const debugWriteTimeout = 30 * time.Second

// DebugWriter stores parser debug dumps under Key.
type DebugWriter struct {
	Store Storage
	Key   string
}

func (w DebugWriter) WriteDebug(content []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), debugWriteTimeout)
	defer cancel()

	if err := w.Store.Save(ctx, w.Key, bytes.NewReader(content)); err != nil {
		return "", err
	}
	return w.Store.Location(w.Key), nil
}
