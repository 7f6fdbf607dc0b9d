package db

import (
	"context"
	"io/fs"
	"testing"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	sum, err := fs.ReadFile(Migrations(), "atlas.sum")
	require.NoError(t, err)
	files, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		assert.Contains(t, string(sum), f)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), "", nil)
	assert.ErrorIs(t, err, media.ErrConfiguration)
}
