package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
)

func TestFileCredentialRepository_Contract(t *testing.T) {
	store, err := NewFileCredentialRepository(t.TempDir())
	require.NoError(t, err)
	credentialStoreContract(t, store)
}

func TestFileCredentialRepository_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileCredentialRepository(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, &model.CredentialRecord{PlatformID: model.PlatformTikTok, AccessToken: "tok",
		Identifiers: map[string]string{model.IdentifierOpenID: "open-1"}}))

	info, err := os.Stat(filepath.Join(dir, "tiktok.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := NewFileCredentialRepository(dir)
	require.NoError(t, err)
	rec, err := second.Get(ctx, model.PlatformTikTok)
	require.NoError(t, err)
	assert.Equal(t, "open-1", rec.Identifier(model.IdentifierOpenID))
	assert.Equal(t, int64(1), rec.Version)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
