package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

type adminFixture struct {
	users  *MockUserRepository
	hasher *MockPasswordHasher
	pres   *fakePresence
	router *captureRouter
	svc    *UserAdminService
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		users:  &MockUserRepository{},
		hasher: &MockPasswordHasher{},
		pres:   &fakePresence{},
		router: &captureRouter{},
	}
	f.svc = NewUserAdminService(f.users, f.hasher, f.pres, f.router,
		&stubServerService{info: model.ServerInfo{Name: "Nexus"}}, stubLocalizer{}, nopLogger{})
	return f
}

func (f *adminFixture) actor() *model.Session {
	s, _ := routerSession(100, 100, "root", true)
	return s
}

func TestUserCreate(t *testing.T) {
	f := newAdminFixture()
	f.hasher.On("Hash", "pw").Return("$h$", nil)
	f.users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Username == "bob" && !u.IsAdmin && u.Enabled && u.PasswordHash == "$h$"
	}), []model.Permission{model.PermChatSend, model.PermChatReceive}).Return(nil)

	verr := f.svc.Create(context.Background(), f.actor(), model.UserCreate{
		Username:    "bob",
		Password:    "pw",
		Enabled:     true,
		Permissions: []string{"chat_send", "chat_receive"},
	})
	assert.Nil(t, verr)
	f.users.AssertExpectations(t)
}

func TestUserCreateUnknownPermission(t *testing.T) {
	f := newAdminFixture()

	verr := f.svc.Create(context.Background(), f.actor(), model.UserCreate{
		Username:    "bob",
		Password:    "pw",
		Permissions: []string{"chat_send", "levitate"},
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindUnknownPermission, verr.Kind)
	assert.Equal(t, "levitate", verr.Params["permission"])
	f.users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserCreateDuplicate(t *testing.T) {
	f := newAdminFixture()
	f.hasher.On("Hash", "pw").Return("$h$", nil)
	f.users.On("CreateUser", mock.Anything, mock.Anything, mock.Anything).
		Return(outbound.ErrUsernameTaken)

	verr := f.svc.Create(context.Background(), f.actor(), model.UserCreate{
		Username: "Bob", Password: "pw",
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindUsernameExists, verr.Kind)
	assert.Equal(t, "Bob", verr.Params["username"])
}

func TestUserCreateEscalationGuards(t *testing.T) {
	f := newAdminFixture()
	creator, _ := routerSession(9, 3, "mallory", false, model.PermUserCreate, model.PermChatSend)

	verr := f.svc.Create(context.Background(), creator, model.UserCreate{
		Username: "backdoor", Password: "pw", IsAdmin: true, Enabled: true,
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindAdminRequired, verr.Kind)

	verr = f.svc.Create(context.Background(), creator, model.UserCreate{
		Username: "minion", Password: "pw", Enabled: true,
		Permissions: []string{"user_kick"},
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindPermissionDenied, verr.Kind)
	assert.Equal(t, "user_kick", verr.Params["permission"])
	f.users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserCreateDelegatesOwnGrants(t *testing.T) {
	f := newAdminFixture()
	creator, _ := routerSession(9, 3, "mallory", false, model.PermUserCreate, model.PermChatSend)
	f.hasher.On("Hash", "pw").Return("$h$", nil)
	f.users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Username == "minion" && !u.IsAdmin
	}), []model.Permission{model.PermChatSend}).Return(nil)

	verr := f.svc.Create(context.Background(), creator, model.UserCreate{
		Username: "minion", Password: "pw", Enabled: true,
		Permissions: []string{"chat_send"},
	})
	assert.Nil(t, verr)
	f.users.AssertExpectations(t)
}

func TestUserDeleteEvictsSessions(t *testing.T) {
	f := newAdminFixture()
	target := &model.User{ID: 2, Username: "bob"}
	f.users.On("GetUserByUsername", mock.Anything, "bob").Return(target, nil)
	f.users.On("DeleteUser", mock.Anything, int64(2)).Return(nil)

	live, liveOut := routerSession(5, 2, "bob", false)
	f.pres.Register(live)

	require.Nil(t, f.svc.Delete(context.Background(), f.actor(), "bob"))

	require.Len(t, liveOut.frames, 1)
	frame, ok := liveOut.frames[0].(model.ErrorFrame)
	require.True(t, ok)
	assert.Equal(t, "account-deleted", frame.Kind)
	assert.True(t, liveOut.shutdown)
}

func TestUserDeleteSelf(t *testing.T) {
	f := newAdminFixture()
	actor := f.actor()
	f.users.On("GetUserByUsername", mock.Anything, "root").
		Return(&model.User{ID: actor.UserID(), Username: "root"}, nil)

	verr := f.svc.Delete(context.Background(), actor, "root")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindCannotDeleteSelf, verr.Kind)
}

func TestUserDeleteLastAdmin(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", IsAdmin: true}, nil)
	f.users.On("DeleteUser", mock.Anything, int64(2)).Return(outbound.ErrLastAdminDelete)

	verr := f.svc.Delete(context.Background(), f.actor(), "bob")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindCannotDeleteLastAdmin, verr.Kind)
}

func TestUserDeleteNotFound(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, outbound.ErrNotFound)

	verr := f.svc.Delete(context.Background(), f.actor(), "ghost")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindUserNotFound, verr.Kind)
}

func TestUserEdit(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "Bob", Enabled: true}, nil)
	f.users.On("Permissions", mock.Anything, int64(2)).
		Return([]model.Permission{model.PermUserList, model.PermChatSend}, nil)

	resp, verr := f.svc.Edit(context.Background(), f.actor(), "bob")
	require.Nil(t, verr)
	assert.True(t, resp.Success)
	assert.Equal(t, "Bob", resp.Username)
	require.NotNil(t, resp.IsAdmin)
	assert.False(t, *resp.IsAdmin)
	require.NotNil(t, resp.Enabled)
	assert.True(t, *resp.Enabled)
	assert.Equal(t, []string{"chat_send", "user_list"}, resp.Permissions)
}

func TestUserUpdateSelf(t *testing.T) {
	f := newAdminFixture()
	actor := f.actor()
	f.users.On("GetUserByUsername", mock.Anything, "root").
		Return(&model.User{ID: actor.UserID(), Username: "root"}, nil)

	verr := f.svc.Update(context.Background(), actor, model.UserUpdateRequest{Username: "root"})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindCannotEditSelf, verr.Kind)
}

func TestUserUpdateEscalationGuards(t *testing.T) {
	f := newAdminFixture()
	editor, _ := routerSession(9, 3, "mallory", false, model.PermUserEdit, model.PermChatSend)
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)

	on := true
	verr := f.svc.Update(context.Background(), editor, model.UserUpdateRequest{
		Username: "bob", RequestedIsAdmin: &on,
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindAdminRequired, verr.Kind)

	off := false
	verr = f.svc.Update(context.Background(), editor, model.UserUpdateRequest{
		Username: "bob", RequestedEnabled: &off,
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindAdminRequired, verr.Kind)

	grants := []string{"chat_send", "user_delete"}
	verr = f.svc.Update(context.Background(), editor, model.UserUpdateRequest{
		Username: "bob", RequestedPermissions: &grants,
	})
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindPermissionDenied, verr.Kind)
	assert.Equal(t, "user_delete", verr.Params["permission"])
	f.users.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserUpdateLastAdminGuards(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantKind model.ErrorKind
	}{
		{"demote", outbound.ErrLastAdminDemote, model.ErrKindCannotDemoteLastAdmin},
		{"disable", outbound.ErrLastAdminOff, model.ErrKindCannotDisableLastAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture()
			f.users.On("GetUserByUsername", mock.Anything, "bob").
				Return(&model.User{ID: 2, Username: "bob", IsAdmin: true, Enabled: true}, nil)
			f.users.On("UpdateUser", mock.Anything, int64(2), mock.Anything).Return(tt.storeErr)

			off := false
			verr := f.svc.Update(context.Background(), f.actor(), model.UserUpdateRequest{
				Username:         "bob",
				RequestedIsAdmin: &off,
				RequestedEnabled: &off,
			})
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantKind, verr.Kind)
		})
	}
}

func TestUserUpdateDisableEvictsSessions(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)
	f.users.On("UpdateUser", mock.Anything, int64(2), mock.Anything).Return(nil)
	f.users.On("GetUserByID", mock.Anything, int64(2)).
		Return(&model.User{ID: 2, Username: "bob", Enabled: false}, nil)
	f.users.On("Permissions", mock.Anything, int64(2)).Return([]model.Permission(nil), nil)

	live, liveOut := routerSession(5, 2, "bob", false)
	f.pres.Register(live)

	off := false
	require.Nil(t, f.svc.Update(context.Background(), f.actor(), model.UserUpdateRequest{
		Username:         "bob",
		RequestedEnabled: &off,
	}))

	require.Len(t, liveOut.frames, 1)
	frame := liveOut.frames[0].(model.ErrorFrame)
	assert.Equal(t, "account-disabled-by-admin", frame.Kind)
	assert.True(t, liveOut.shutdown)
	assert.Empty(t, f.router.published(), "no grant refresh for an evicted user")
}

func TestUserUpdateRenamePropagates(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)
	f.users.On("UpdateUser", mock.Anything, int64(2), mock.MatchedBy(func(c model.UserChanges) bool {
		return c.Username != nil && *c.Username == "robert" && !c.SetPermissions
	})).Return(nil)
	f.users.On("GetUserByID", mock.Anything, int64(2)).
		Return(&model.User{ID: 2, Username: "robert", Enabled: true}, nil)
	f.users.On("Permissions", mock.Anything, int64(2)).
		Return([]model.Permission{model.PermChatSend}, nil)

	live, liveOut := routerSession(5, 2, "bob", false)
	f.pres.Register(live)

	newName := "robert"
	require.Nil(t, f.svc.Update(context.Background(), f.actor(), model.UserUpdateRequest{
		Username:          "bob",
		RequestedUsername: &newName,
	}))

	assert.Equal(t, "robert", f.pres.renamedTo[2], "presence index rebound")
	assert.Equal(t, "robert", live.Username(), "session cache updated")
	assert.True(t, live.HasPermission(model.PermChatSend))
	assert.False(t, liveOut.shutdown)

	events := f.router.published()
	require.Len(t, events, 2)

	grants, ok := events[0].Frame.(model.PermissionsUpdated)
	require.True(t, ok)
	assert.Equal(t, []string{"chat_send"}, grants.Permissions)
	require.NotNil(t, grants.ServerInfo)
	assert.Equal(t, []int64{2}, events[0].UserIDs, "grant refresh targets the user only")

	updated, ok := events[1].Frame.(model.UserUpdated)
	require.True(t, ok)
	assert.Equal(t, "bob", updated.PreviousUsername)
	assert.Equal(t, "robert", updated.User.Username)
	assert.Equal(t, model.PermUserList, events[1].Require)
}

func TestUserUpdatePermissionsOnlySkipsUserUpdated(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)
	f.users.On("UpdateUser", mock.Anything, int64(2), mock.MatchedBy(func(c model.UserChanges) bool {
		return c.SetPermissions && len(c.Permissions) == 0
	})).Return(nil)
	f.users.On("GetUserByID", mock.Anything, int64(2)).
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)
	f.users.On("Permissions", mock.Anything, int64(2)).Return([]model.Permission{}, nil)

	live, _ := routerSession(5, 2, "bob", false, model.PermChatSend)
	f.pres.Register(live)

	empty := []string{}
	require.Nil(t, f.svc.Update(context.Background(), f.actor(), model.UserUpdateRequest{
		Username:             "bob",
		RequestedPermissions: &empty,
	}))

	assert.False(t, live.HasPermission(model.PermChatSend), "grants cleared")

	events := f.router.published()
	require.Len(t, events, 1, "no rename and no admin flip, so no UserUpdated")
	_, ok := events[0].Frame.(model.PermissionsUpdated)
	assert.True(t, ok)
}

func TestUserUpdateOfflineTargetSkipsReconcile(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "bob", Enabled: true}, nil)
	f.users.On("UpdateUser", mock.Anything, int64(2), mock.Anything).Return(nil)
	f.users.On("GetUserByID", mock.Anything, int64(2)).
		Return(&model.User{ID: 2, Username: "robert", Enabled: true}, nil)
	f.users.On("Permissions", mock.Anything, int64(2)).Return([]model.Permission(nil), nil)

	newName := "robert"
	require.Nil(t, f.svc.Update(context.Background(), f.actor(), model.UserUpdateRequest{
		Username:          "bob",
		RequestedUsername: &newName,
	}))
	assert.Empty(t, f.router.published())
}

func TestUserKick(t *testing.T) {
	f := newAdminFixture()
	first, firstOut := routerSession(5, 2, "bob", false)
	second, secondOut := routerSession(6, 2, "bob", false)
	f.pres.Register(first)
	f.pres.Register(second)

	require.Nil(t, f.svc.Kick(context.Background(), f.actor(), "bob"))

	for _, out := range []*captureOutbound{firstOut, secondOut} {
		require.Len(t, out.frames, 1)
		frame := out.frames[0].(model.Kicked)
		assert.Equal(t, "root", frame.By)
		assert.True(t, out.shutdown)
	}
}

func TestUserKickGuards(t *testing.T) {
	f := newAdminFixture()

	verr := f.svc.Kick(context.Background(), f.actor(), "ghost")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindUserNotOnline, verr.Kind)

	actor := f.actor()
	f.pres.Register(actor)
	verr = f.svc.Kick(context.Background(), actor, "root")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindCannotKickSelf, verr.Kind)

	otherAdmin, _ := routerSession(7, 3, "coadmin", true)
	f.pres.Register(otherAdmin)
	verr = f.svc.Kick(context.Background(), actor, "coadmin")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindCannotKickAdmin, verr.Kind)
}

func TestUserInfo(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "Bob", CreatedAt: 1700000000}, nil)

	second, _ := routerSession(6, 2, "Bob", false)
	first, _ := routerSession(5, 2, "Bob", false)
	f.pres.Register(second)
	f.pres.Register(first)

	detail, verr := f.svc.Info(context.Background(), f.actor(), "bob")
	require.Nil(t, verr)
	assert.Equal(t, "Bob", detail.Username)
	assert.Equal(t, []uint32{5, 6}, detail.SessionIDs, "sorted by session ID")
	assert.Equal(t, int64(1700000000), detail.CreatedAt)
	require.NotNil(t, detail.IsAdmin, "admin requester sees the admin flag")
	assert.Len(t, detail.Addresses, 2)
}

func TestUserInfoNonAdminRequester(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "Bob"}, nil)
	live, _ := routerSession(5, 2, "Bob", false)
	f.pres.Register(live)

	requester, _ := routerSession(9, 3, "carol", false, model.PermUserInfo)
	detail, verr := f.svc.Info(context.Background(), requester, "bob")
	require.Nil(t, verr)
	assert.Nil(t, detail.IsAdmin)
	assert.Empty(t, detail.Addresses)
}

func TestUserInfoOffline(t *testing.T) {
	f := newAdminFixture()
	f.users.On("GetUserByUsername", mock.Anything, "bob").
		Return(&model.User{ID: 2, Username: "Bob"}, nil)

	_, verr := f.svc.Info(context.Background(), f.actor(), "bob")
	require.NotNil(t, verr)
	assert.Equal(t, model.ErrKindUserNotOnline, verr.Kind)
}

func TestUserList(t *testing.T) {
	f := newAdminFixture()
	bob1, _ := routerSession(6, 2, "bob", false)
	bob2, _ := routerSession(5, 2, "bob", false)
	alice, _ := routerSession(7, 1, "alice", true)
	pending := model.NewSession(8, "", "", &captureOutbound{})
	f.pres.Register(bob1)
	f.pres.Register(bob2)
	f.pres.Register(alice)
	f.pres.Register(pending)

	users, verr := f.svc.List(context.Background(), f.actor())
	require.Nil(t, verr)
	require.Len(t, users, 2, "pending sessions are invisible")

	assert.Equal(t, "alice", users[0].Username)
	assert.True(t, users[0].IsAdmin)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, []uint32{5, 6}, users[1].SessionIDs)
}
