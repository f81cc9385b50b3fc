package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nexus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUser(t *testing.T, repo *UserRepository, username string, isAdmin, enabled bool,
	perms ...model.Permission) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "$argon2id$stub$" + username,
		IsAdmin:      isAdmin,
		Enabled:      enabled,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user, perms))
	return user
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	// Open already migrated; a second run must be a no-op
	require.NoError(t, Migrate(context.Background(), db.SQL()))

	for _, table := range []string{"users", "user_permissions", "config", "chat_state"} {
		var name string
		err := db.SQL().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	// the pre-split table must be gone after the rename
	var count int
	require.NoError(t, db.SQL().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'server_config'").Scan(&count))
	assert.Zero(t, count)
}

func TestCreateAndGetUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	user := createUser(t, repo, "Alice", true, true, model.PermChatSend, model.PermUserList)
	assert.NotZero(t, user.ID)
	assert.NotZero(t, user.CreatedAt)

	count, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	perms, err := repo.Permissions(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Permission{model.PermChatSend, model.PermUserList}, perms)
}

func TestGetUserByUsernameCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, repo, "Alice", false, true)

	for _, lookup := range []string{"Alice", "alice", "ALICE"} {
		got, err := repo.GetUserByUsername(ctx, lookup)
		require.NoError(t, err, lookup)
		assert.Equal(t, "Alice", got.Username, "stored casing preserved")
	}

	_, err := repo.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, outbound.ErrNotFound)
}

func TestCreateUserUsernameCollision(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, repo, "Alice", false, true)

	dup := &model.User{Username: "ALICE", PasswordHash: "$x$", Enabled: true}
	err := repo.CreateUser(ctx, dup, nil)
	assert.ErrorIs(t, err, outbound.ErrUsernameTaken, "uniqueness folds case")

	// the failed insert must not have left permission rows or a user behind
	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCreateUserRejectsUnknownPermission(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Username: "bob", PasswordHash: "$x$", Enabled: true}
	err := repo.CreateUser(context.Background(), user, []model.Permission{"levitate"})
	assert.ErrorIs(t, err, outbound.ErrUnknownPerm)
}

func TestUpdateUserFields(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, repo, "admin", true, true)
	user := createUser(t, repo, "bob", false, true, model.PermChatSend)

	newName := "robert"
	newHash := "$new$"
	isAdmin := true
	require.NoError(t, repo.UpdateUser(ctx, user.ID, model.UserChanges{
		Username: &newName,
		Password: &newHash,
		IsAdmin:  &isAdmin,
	}))

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "robert", got.Username)
	assert.Equal(t, "$new$", got.PasswordHash)
	assert.True(t, got.IsAdmin)
	assert.True(t, got.Enabled, "untouched field kept")

	perms, err := repo.Permissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Permission{model.PermChatSend}, perms, "no SetPermissions, grants kept")
}

func TestUpdateUserReplacesPermissions(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createUser(t, repo, "bob", false, true, model.PermChatSend, model.PermChatReceive)

	require.NoError(t, repo.UpdateUser(ctx, user.ID, model.UserChanges{
		Permissions:    []model.Permission{model.PermUserList},
		SetPermissions: true,
	}))
	perms, err := repo.Permissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Permission{model.PermUserList}, perms)

	// an empty set clears every grant
	require.NoError(t, repo.UpdateUser(ctx, user.ID, model.UserChanges{SetPermissions: true}))
	perms, err = repo.Permissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestUpdateUserRenameCollision(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, repo, "Alice", false, true)
	user := createUser(t, repo, "bob", false, true)

	taken := "alice"
	err := repo.UpdateUser(ctx, user.ID, model.UserChanges{Username: &taken})
	assert.ErrorIs(t, err, outbound.ErrUsernameTaken)
}

func TestUpdateUserNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	err := repo.UpdateUser(context.Background(), 99, model.UserChanges{})
	assert.ErrorIs(t, err, outbound.ErrNotFound)
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	admin := createUser(t, repo, "admin", true, true)

	off := false
	err := repo.UpdateUser(ctx, admin.ID, model.UserChanges{IsAdmin: &off})
	assert.ErrorIs(t, err, outbound.ErrLastAdminDemote)

	got, err := repo.GetUserByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin, "blocked update changed nothing")

	// with a second admin the demotion goes through
	createUser(t, repo, "backup", true, true)
	require.NoError(t, repo.UpdateUser(ctx, admin.ID, model.UserChanges{IsAdmin: &off}))
}

func TestLastEnabledAdminCannotBeDisabled(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	admin := createUser(t, repo, "admin", true, true)
	// a second admin that is already disabled does not count
	disabled := createUser(t, repo, "dormant", true, false)

	off := false
	err := repo.UpdateUser(ctx, admin.ID, model.UserChanges{Enabled: &off})
	assert.ErrorIs(t, err, outbound.ErrLastAdminOff)

	// re-enabling the dormant admin unblocks it
	on := true
	require.NoError(t, repo.UpdateUser(ctx, disabled.ID, model.UserChanges{Enabled: &on}))
	require.NoError(t, repo.UpdateUser(ctx, admin.ID, model.UserChanges{Enabled: &off}))
}

func TestDeleteUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, repo, "admin", true, true)
	user := createUser(t, repo, "bob", false, true, model.PermChatSend)

	require.NoError(t, repo.DeleteUser(ctx, user.ID))

	_, err := repo.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, outbound.ErrNotFound)

	// permission rows cascaded with the user
	var count int
	require.NoError(t, db.SQL().QueryRow(
		"SELECT COUNT(*) FROM user_permissions WHERE user_id = ?", user.ID).Scan(&count))
	assert.Zero(t, count)
}

func TestDeleteLastAdmin(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	admin := createUser(t, repo, "admin", true, true)
	createUser(t, repo, "bob", false, true)

	err := repo.DeleteUser(ctx, admin.ID)
	assert.ErrorIs(t, err, outbound.ErrLastAdminDelete)

	createUser(t, repo, "backup", true, true)
	require.NoError(t, repo.DeleteUser(ctx, admin.ID))
}

func TestDeleteUserNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	assert.ErrorIs(t, repo.DeleteUser(context.Background(), 99), outbound.ErrNotFound)
}

func TestConfigDefaults(t *testing.T) {
	db := openTestDB(t)
	repo := NewConfigRepository(db)
	ctx := context.Background()

	name, err := repo.ServerName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nexus", name)

	description, err := repo.ServerDescription(ctx)
	require.NoError(t, err)
	assert.Empty(t, description)

	limit, err := repo.MaxConnectionsPerIP(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), limit)

	enabled, err := repo.ChatEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestConfigRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewConfigRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SetServerName(ctx, "My Server"))
	require.NoError(t, repo.SetServerDescription(ctx, "hello"))
	require.NoError(t, repo.SetServerImage(ctx, "data:image/png;base64,AAAA"))
	require.NoError(t, repo.SetMaxConnectionsPerIP(ctx, 12))
	require.NoError(t, repo.SetChatEnabled(ctx, false))

	name, _ := repo.ServerName(ctx)
	assert.Equal(t, "My Server", name)
	description, _ := repo.ServerDescription(ctx)
	assert.Equal(t, "hello", description)
	image, _ := repo.ServerImage(ctx)
	assert.Equal(t, "data:image/png;base64,AAAA", image)
	limit, _ := repo.MaxConnectionsPerIP(ctx)
	assert.Equal(t, uint32(12), limit)
	enabled, _ := repo.ChatEnabled(ctx)
	assert.False(t, enabled)
}

func TestConfigCorruptLimitFallsBack(t *testing.T) {
	db := openTestDB(t)
	repo := NewConfigRepository(db)
	ctx := context.Background()

	_, err := db.SQL().ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES ('max_connections_per_ip', 'lots')")
	require.NoError(t, err)

	limit, err := repo.MaxConnectionsPerIP(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), limit, "corrupt value must not disable the gate")
}

func TestChatStateTopic(t *testing.T) {
	db := openTestDB(t)
	repo := NewChatStateRepository(db)
	ctx := context.Background()

	topic, setBy, err := repo.Topic(ctx)
	require.NoError(t, err)
	assert.Empty(t, topic)
	assert.Empty(t, setBy)

	require.NoError(t, repo.SetTopic(ctx, "release day", "alice"))
	topic, setBy, err = repo.Topic(ctx)
	require.NoError(t, err)
	assert.Equal(t, "release day", topic)
	assert.Equal(t, "alice", setBy)

	// clearing stores empty values rather than deleting rows
	require.NoError(t, repo.SetTopic(ctx, "", "bob"))
	topic, setBy, err = repo.Topic(ctx)
	require.NoError(t, err)
	assert.Empty(t, topic)
	assert.Equal(t, "bob", setBy)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
