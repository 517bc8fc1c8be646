package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/auth"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	b, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestResolverMatchesHashedKey(t *testing.T) {
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)

	hashes := map[int64]string{7: hash}
	r := auth.NewResolver()

	id, ok := r.Resolve(key, hashes)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	// Second resolve hits the verified-key cache; same answer.
	id, ok = r.Resolve(key, hashes)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = r.Resolve("wrong-key", hashes)
	assert.False(t, ok)
	_, ok = r.Resolve("", hashes)
	assert.False(t, ok)
}

func TestResolverDropsRevokedKeys(t *testing.T) {
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)

	r := auth.NewResolver()
	_, ok := r.Resolve(key, map[int64]string{3: hash})
	require.True(t, ok)

	// Once the stored hash disappears, the cached key must stop resolving.
	_, ok = r.Resolve(key, map[int64]string{})
	assert.False(t, ok)
	_, ok = r.Resolve(key, map[int64]string{3: hash})
	assert.True(t, ok)
}
