package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/warden/pkg/persistence"
	"github.com/dukex/warden/pkg/persistence/file"
	"github.com/dukex/warden/pkg/persistence/postgresql"
	"github.com/dukex/warden/pkg/persistence/redis"
)

// ErrUnsupportedURL is returned for database URLs with an unknown scheme.
var ErrUnsupportedURL = errors.New("unsupported database url")

// NewPersistence opens the KV backend selected by the scheme of databaseURL: file://,
// redis://, rediss://, postgres:// or postgresql://.
//
//nolint:ireturn // callers only need the KV interface
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.KV, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "file":
		return file.NewPersistence(databaseURL), nil
	case "redis", "rediss":
		kv, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return kv, nil
	case "postgres", "postgresql":
		kv, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return kv, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
