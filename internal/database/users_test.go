package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerting/internal/models"
)

func TestUsersRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("CreateUser creates new user", func(t *testing.T) {
		testDB.TruncateAll(t)

		user := &models.User{
			Username:     "alice",
			Email:        "alice@example.com",
			PasswordHash: "hashed",
			FirstName:    "Alice",
			LastName:     "Smith",
		}
		err := testDB.CreateUser(user)
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.False(t, user.CreatedAt.IsZero())
	})

	t.Run("CreateUser rejects duplicate username", func(t *testing.T) {
		testDB.TruncateAll(t)

		user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hashed"}
		require.NoError(t, testDB.CreateUser(user))

		dup := &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "hashed"}
		err := testDB.CreateUser(dup)
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("GetUserByUsername retrieves user", func(t *testing.T) {
		testDB.TruncateAll(t)

		user := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "hashed"}
		require.NoError(t, testDB.CreateUser(user))

		retrieved, err := testDB.GetUserByUsername("bob")
		require.NoError(t, err)
		assert.Equal(t, user.ID, retrieved.ID)
		assert.Equal(t, "bob@example.com", retrieved.Email)
		assert.Equal(t, "hashed", retrieved.PasswordHash)
	})

	t.Run("GetUserByUsername returns error for unknown user", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetUserByUsername("nobody")
		assert.Error(t, err)
	})

	t.Run("UpdateUserProfile updates profile fields", func(t *testing.T) {
		testDB.TruncateAll(t)

		user := &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: "hashed"}
		require.NoError(t, testDB.CreateUser(user))

		user.Email = "carol@work.example.com"
		user.FirstName = "Carol"
		require.NoError(t, testDB.UpdateUserProfile(user))

		retrieved, err := testDB.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, "carol@work.example.com", retrieved.Email)
		assert.Equal(t, "Carol", retrieved.FirstName)
	})
}
