package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	return p
}

func TestLocalRoundTrip(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()

	f, err := p.UploadFile(ctx, []byte("contents"), "docs/lease", "lease.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "lease.pdf", f.Name)
	assert.Equal(t, int64(8), f.Size)

	data, err := p.DownloadFile(ctx, f.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("contents"), data)

	exists, err := p.FileExists(ctx, f.Path)
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err := p.DeleteFile(ctx, f.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = p.DownloadFile(ctx, f.Path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalCreateFolderIdempotent(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := p.CreateFolder(ctx, "a/b/c")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestLocalList(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()

	_, err := p.UploadFile(ctx, []byte("1"), "vault/lease", "a.txt", "")
	require.NoError(t, err)
	_, err = p.UploadFile(ctx, []byte("2"), "vault/photos", "b.jpg", "")
	require.NoError(t, err)

	flat, err := p.ListFiles(ctx, "vault", false)
	require.NoError(t, err)
	assert.Len(t, flat, 2) // the two type folders

	deep, err := p.ListFiles(ctx, "vault", true)
	require.NoError(t, err)

	var names []string
	for _, f := range deep {
		if !f.IsFolder {
			names = append(names, f.Name)
		}
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.jpg"}, names)
}

func TestLocalPathEscapeRefused(t *testing.T) {
	p := newLocal(t)
	_, err := p.DownloadFile(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestLocalMissingRootRejected(t *testing.T) {
	_, err := NewLocalProvider("")
	assert.ErrorIs(t, err, ErrMisconfigured)
}
