package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "roomhub:schema:version"
	currentSchemaVersion = 1
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations. Presence keys are transient, so
// migrations mostly exist to sweep keys left behind by older layouts.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Initial layout: per-room members/handles hashes. Sweep any
			// stale presence keys so counts start from a clean slate after a
			// layout change.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				var cursor uint64
				for {
					keys, next, err := client.Scan(ctx, cursor, "roomhub:room:*", 100).Result()
					if err != nil {
						return err
					}
					if len(keys) > 0 {
						if err := client.Del(ctx, keys...).Err(); err != nil {
							return err
						}
					}
					cursor = next
					if cursor == 0 {
						return nil
					}
				}
			},
		},
	}
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", val, err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, strconv.Itoa(version), 0).Err()
}
