package security

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMasterKey(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	path := filepath.Join(t.TempDir(), "master.key")

	key, generated, err := LoadMasterKey(path)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, key, KeySize)

	again, generated, err := LoadMasterKey(path)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, key, again)

	envKey := strings.Repeat("ab", KeySize)
	t.Setenv(MasterKeyEnv, envKey)
	fromEnv, _, err := LoadMasterKey(path)
	require.NoError(t, err)
	assert.Equal(t, envKey, hex.EncodeToString(fromEnv))

	t.Setenv(MasterKeyEnv, "short")
	_, _, err = LoadMasterKey(path)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadMasterKey_BadFile(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte("not hex"), 0600))

	_, _, err := LoadMasterKey(path)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecrypt(t *testing.T) {
	key := make([]byte, KeySize)
	other := make([]byte, KeySize)
	other[0] = 1

	sealed, err := Encrypt(key, []byte("catalog"))
	require.NoError(t, err)

	plain, err := Decrypt(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "catalog", string(plain))

	_, err = Decrypt(other, sealed)
	assert.Error(t, err)

	_, err = Encrypt([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Decrypt(key, []byte{1, 2})
	assert.Error(t, err)
}
