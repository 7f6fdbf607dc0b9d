package postgres

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentdf/drmpolicy/internal/db"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testURLEnv names a database the tests may wipe.
const testURLEnv = "DRMPOLICY_TEST_POSTGRES_URL"

func TestStoreError(t *testing.T) {
	assert.NoError(t, storeError(nil, media.ErrNotFound, "x"))
	assert.ErrorIs(t, storeError(pgx.ErrNoRows, media.ErrConflict, "asset %s", "a"), media.ErrNotFound)
	assert.ErrorIs(t, storeError(&pgconn.PgError{Code: uniqueViolation}, media.ErrNotFound, "x"), media.ErrConflict)
	assert.ErrorIs(t, storeError(&pgconn.PgError{Code: foreignKeyViolation}, media.ErrNotFound, "x"), media.ErrNotFound)
	assert.ErrorIs(t, storeError(&pgconn.PgError{Code: foreignKeyViolation}, media.ErrConflict, "x"), media.ErrConflict)

	err := storeError(errors.New("boom"), media.ErrNotFound, "asset %s", "a")
	assert.EqualError(t, err, "asset a: boom")
	assert.False(t, errors.Is(err, media.ErrNotFound))
}

func TestNewAddsTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://origin.example.com/", New(nil, "https://origin.example.com").origin)
	assert.Equal(t, "https://origin.example.com/", New(nil, "https://origin.example.com/").origin)
}

func TestStore(t *testing.T) {
	url := os.Getenv(testURLEnv)
	if url == "" {
		t.Skipf("%s not set", testURLEnv)
	}
	ctx := context.Background()
	client, err := db.NewClient(ctx, url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	_, err = client.Exec(ctx, `DROP SCHEMA IF EXISTS drm CASCADE`)
	require.NoError(t, err)
	files, err := fs.Glob(db.Migrations(), "*.sql")
	require.NoError(t, err)
	for _, f := range files {
		sql, err := fs.ReadFile(db.Migrations(), f)
		require.NoError(t, err)
		_, err = client.Exec(ctx, string(sql))
		require.NoError(t, err, f)
	}

	storetest.Run(t, New(client, "https://origin.example.com"), "https://origin.example.com/")
}
