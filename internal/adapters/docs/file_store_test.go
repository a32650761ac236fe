package docs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressflow/internal/domain"
)

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetContent(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	v1, err := store.PersistVersion(ctx, "doc-1", []byte("first draft"), map[string]string{"author": "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, v1)

	v2, err := store.PersistVersion(ctx, "doc-1", []byte("second draft"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	content, err := store.GetContent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second draft"), content, "the newest version wins")

	// Documents do not share versions.
	_, err = store.PersistVersion(ctx, "doc-2", []byte("other"), nil)
	require.NoError(t, err)
	content, err = store.GetContent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second draft"), content)
}
