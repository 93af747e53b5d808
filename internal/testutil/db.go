// Package testutil holds helpers shared by unit and integration tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hireloop/hireloop/migrations"
)

// dbLockKey serializes integration packages that share one database.
const dbLockKey int64 = 0x68697265 // "hire"

// RequireEnv returns the value of key, skipping the test when it is unset.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// AcquireDBLock takes a session advisory lock on a dedicated connection.
// The returned func unlocks and releases the connection.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", dbLockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock database: %w", err)
	}
	return func() error {
		_, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", dbLockKey)
		conn.Release()
		if err != nil {
			return fmt.Errorf("unlock database: %w", err)
		}
		return nil
	}, nil
}

// ResetSchema runs every embedded down migration newest first, then every
// up migration oldest first. Plans seeded by the migrations come back.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	if err != nil {
		return err
	}
	slices.Sort(ups)
	slices.Sort(downs)
	slices.Reverse(downs)

	for _, name := range append(downs, ups...) {
		body, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// FlushRedis empties the selected Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot is the directory holding go.mod.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("testutil: caller unknown")
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("testutil: go.mod not found")
		}
		dir = parent
	}
}
