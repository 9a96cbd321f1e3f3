package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsInvalidRefs(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	testCases := []struct {
		name    string
		ref     string
		wantErr string
	}{
		{name: "empty", ref: "", wantErr: "credential ref is empty"},
		{name: "scheme only", ref: "opool://", wantErr: "credential ref is empty"},
		{name: "absolute", ref: "/absolute/path", wantErr: "invalid credential ref"},
		{name: "traversal", ref: "opool://../escape", wantErr: "invalid credential ref"},
		{name: "deep traversal", ref: "../../secret", wantErr: "invalid credential ref"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Put(context.Background(), tc.ref, "value")
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestStorePutGetRoundTripAndPermissions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	ref := "opool://acc-1/credential"

	require.NoError(t, store.Put(context.Background(), ref, "session-cookie"))

	got, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "session-cookie", got)

	info, err := os.Stat(filepath.Join(root, "acc-1", "credential"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMode), info.Mode().Perm())

	require.NoError(t, store.Put(context.Background(), ref, "rotated"))
	got, err = store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)

	entries, err := os.ReadDir(filepath.Join(root, "acc-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreGetTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acc-2"), storeDirMode))
	require.NoError(t, os.WriteFile(filepath.Join(root, "acc-2", "credential"), []byte("token\n"), secretFileMode))

	got, err := NewStore(root).Get(context.Background(), "opool://acc-2/credential")
	require.NoError(t, err)
	assert.Equal(t, "token", got)
}

func TestStoreMissingCredential(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	ref := "opool://acc-1/credential"

	_, err := store.Get(context.Background(), ref)
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)

	require.NoError(t, store.Delete(context.Background(), ref))
	require.NoError(t, store.Delete(context.Background(), ref))
}

func TestStoreCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore(t.TempDir()).Put(ctx, "opool://acc-1/credential", "x")
	assert.ErrorIs(t, err, context.Canceled)
}
