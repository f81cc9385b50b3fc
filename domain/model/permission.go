package model

import "sort"

// Permission names a grant in the closed permission set. Admins bypass
// permission checks entirely; non-admins hold an explicit grant list.
type Permission string

const (
	PermUserList      Permission = "user_list"
	PermUserInfo      Permission = "user_info"
	PermChatSend      Permission = "chat_send"
	PermChatReceive   Permission = "chat_receive"
	PermChatTopic     Permission = "chat_topic"
	PermChatTopicEdit Permission = "chat_topic_edit"
	PermUserBroadcast Permission = "user_broadcast"
	PermUserCreate    Permission = "user_create"
	PermUserDelete    Permission = "user_delete"
	PermUserEdit      Permission = "user_edit"
	PermUserKick      Permission = "user_kick"
	PermUserMessage   Permission = "user_message"
)

var allPermissions = []Permission{
	PermChatReceive,
	PermChatSend,
	PermChatTopic,
	PermChatTopicEdit,
	PermUserBroadcast,
	PermUserCreate,
	PermUserDelete,
	PermUserEdit,
	PermUserInfo,
	PermUserKick,
	PermUserList,
	PermUserMessage,
}

// AllPermissions returns the closed set in stable order.
func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// ParsePermission resolves a wire name against the closed set.
func ParsePermission(name string) (Permission, bool) {
	for _, p := range allPermissions {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

// ParsePermissions resolves a list of wire names. On failure it returns the
// first offending name so the error can carry it.
func ParsePermissions(names []string) ([]Permission, string, bool) {
	perms := make([]Permission, 0, len(names))
	for _, name := range names {
		p, ok := ParsePermission(name)
		if !ok {
			return nil, name, false
		}
		perms = append(perms, p)
	}
	return perms, "", true
}

// PermissionSet is a grant lookup built from a permission list.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Strings returns the grants as sorted wire names.
func (s PermissionSet) Strings() []string {
	names := make([]string, 0, len(s))
	for p := range s {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
