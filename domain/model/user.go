package model

// User is a persisted identity. Username casing is preserved as entered at
// creation time; uniqueness is enforced case-insensitively by the store.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	Enabled      bool
	CreatedAt    int64
}

// UserChanges carries requested field changes for an existing account.
// Nil pointers mean "leave unchanged"; Permissions is applied only when
// SetPermissions is true so an empty list can clear all grants.
type UserChanges struct {
	Username       *string
	Password       *string
	IsAdmin        *bool
	Enabled        *bool
	Permissions    []Permission
	SetPermissions bool
}
