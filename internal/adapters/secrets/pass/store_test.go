package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	input string
	args  []string
}

func recordingStore(stdout, stderr string, err error) (*Store, *[]call) {
	calls := &[]call{}
	return &Store{
		run: func(_ context.Context, input string, args ...string) (string, string, error) {
			*calls = append(*calls, call{input: input, args: args})
			return stdout, stderr, err
		},
	}, calls
}

func TestStoreMapsRefsToPrefixedEntries(t *testing.T) {
	t.Parallel()

	store, calls := recordingStore("", "", nil)
	require.NoError(t, store.Put(context.Background(), "opool://acc-1/credential", "cookie"))
	require.NoError(t, store.Delete(context.Background(), "opool://acc-1/credential"))

	assert.Equal(t, []call{
		{input: "cookie\n", args: []string{"insert", "--multiline", "--force", "opool/acc-1/credential"}},
		{args: []string{"rm", "--force", "opool/acc-1/credential"}},
	}, *calls)
}

func TestStoreGetTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store, calls := recordingStore("cookie\r\n", "", nil)

	value, err := store.Get(context.Background(), "opool://acc-1/credential")
	require.NoError(t, err)
	assert.Equal(t, "cookie", value)
	assert.Equal(t, []string{"show", "opool/acc-1/credential"}, (*calls)[0].args)
}

func TestStoreMissingEntry(t *testing.T) {
	t.Parallel()

	store, _ := recordingStore("", "Error: opool/acc-1/credential is not in the password store.", errors.New("exit status 1"))

	_, err := store.Get(context.Background(), "opool://acc-1/credential")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)

	assert.NoError(t, store.Delete(context.Background(), "opool://acc-1/credential"))
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store, _ := recordingStore("", "gpg: decryption failed", errors.New("exit status 2"))

	_, err := store.Get(context.Background(), "opool://acc-1/credential")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
	assert.ErrorContains(t, err, "pass show")
	assert.ErrorContains(t, err, "opool/acc-1/credential")
	assert.ErrorContains(t, err, "gpg: decryption failed")
}

func TestStoreRejectsInvalidRefs(t *testing.T) {
	t.Parallel()

	store, calls := recordingStore("", "", nil)
	for _, ref := range []string{"", "opool://", "opool://../escape", "acc-1//credential"} {
		err := store.Put(context.Background(), ref, "x")
		assert.Error(t, err, ref)
	}
	assert.Empty(t, *calls)
}
