package artifacts

import (
	"context"
	"strings"

	"github.com/matthewgall/shelfscrape/internal/config"
)

func New(ctx context.Context, cfg config.ArtifactsConfig) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Method)) {
	case "", "local":
		baseDir := strings.TrimSpace(cfg.Local.Directory)
		if baseDir == "" {
			baseDir = "."
		}
		return NewLocal(baseDir), nil
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, ErrUnknownStorage
	}
}
