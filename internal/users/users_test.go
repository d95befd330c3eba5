package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

const admin123SHA256 = "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9"

func TestSHA256Hasher(t *testing.T) {
	h := users.SHA256Hasher{}

	t.Run("deterministic digest", func(t *testing.T) {
		first, err := h.Hash("admin123")
		require.NoError(t, err)
		second, err := h.Hash("admin123")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, admin123SHA256, first)
	})

	t.Run("verify", func(t *testing.T) {
		assert.True(t, h.Verify(admin123SHA256, "admin123"))
		assert.False(t, h.Verify(admin123SHA256, "admin1234"))
		assert.False(t, h.Verify(admin123SHA256, ""))
		assert.False(t, h.Verify("", "admin123"))
	})
}

func TestBcryptHasher(t *testing.T) {
	h := users.BcryptHasher{Cost: 4}

	hash, err := h.Hash("admin123")
	require.NoError(t, err)
	assert.NotEqual(t, "admin123", hash)

	other, err := h.Hash("admin123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "bcrypt hashes are salted")

	assert.True(t, h.Verify(hash, "admin123"))
	assert.False(t, h.Verify(hash, "wrong"))
	assert.False(t, h.Verify("not-a-bcrypt-hash", "admin123"))
}

func TestNewHasher(t *testing.T) {
	h, err := users.NewHasher("sha256")
	require.NoError(t, err)
	assert.IsType(t, users.SHA256Hasher{}, h)

	h, err = users.NewHasher("bcrypt")
	require.NoError(t, err)
	assert.IsType(t, users.BcryptHasher{}, h)

	_, err = users.NewHasher("md5")
	assert.Error(t, err)
}

func TestBuildRecords(t *testing.T) {
	h := users.SHA256Hasher{}

	t.Run("hashes plain passwords", func(t *testing.T) {
		records, err := users.BuildRecords(h, []users.Seed{
			{Username: "admin", Password: "admin123", Role: "admin"},
			{Username: "ops", PasswordHash: "precomputed", Role: "user"},
		})
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, admin123SHA256, records[0].PasswordHash)
		assert.Equal(t, users.RoleAdmin, records[0].Role)
		assert.Equal(t, "precomputed", records[1].PasswordHash)
		assert.Equal(t, users.RoleUser, records[1].Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := users.BuildRecords(h, []users.Seed{{Username: "x", Password: "p", Role: "root"}})
		assert.ErrorIs(t, err, users.ErrInvalidSeed)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := users.BuildRecords(h, []users.Seed{{Username: "x", Role: "user"}})
		assert.ErrorIs(t, err, users.ErrInvalidSeed)
	})
}

func TestStaticRepository(t *testing.T) {
	repo, err := users.NewStaticRepository(
		users.Record{Username: "user", PasswordHash: "h1", Role: users.RoleUser},
		users.Record{Username: "admin", PasswordHash: "h2", Role: users.RoleAdmin},
	)
	require.NoError(t, err)

	ctx := context.Background()

	rec, err := repo.Lookup(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, rec.Role)
	assert.Equal(t, "h2", rec.PasswordHash)

	_, err = repo.Lookup(ctx, "nobody")
	assert.ErrorIs(t, err, users.ErrUnknownUser)

	assert.Equal(t, []string{"admin", "user"}, repo.Usernames())

	_, err = users.NewStaticRepository(
		users.Record{Username: "dup", Role: users.RoleUser},
		users.Record{Username: "dup", Role: users.RoleAdmin},
	)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := users.ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, r)

	_, err = users.ParseRole("Admin")
	assert.Error(t, err)
}
