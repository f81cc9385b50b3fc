package model

import "fmt"

// ErrorKind identifies one localizable protocol error. The set is closed;
// every kind has an English catalog entry and may have translations.
type ErrorKind string

const (
	// session lifecycle
	ErrKindHandshakeRequired         ErrorKind = "handshake-required"
	ErrKindHandshakeAlreadyCompleted ErrorKind = "handshake-already-completed"
	ErrKindAlreadyLoggedIn           ErrorKind = "already-logged-in"
	ErrKindNotLoggedIn               ErrorKind = "not-logged-in"

	// authentication and versioning
	ErrKindInvalidCredentials     ErrorKind = "invalid-credentials"
	ErrKindAccountDisabledByAdmin ErrorKind = "account-disabled-by-admin"
	ErrKindAccountDeleted         ErrorKind = "account-deleted"
	ErrKindVersionInvalid         ErrorKind = "version-invalid"
	ErrKindVersionMajorMismatch   ErrorKind = "version-major-mismatch"
	ErrKindVersionClientTooNew    ErrorKind = "version-client-too-new"

	// framing and dispatch
	ErrKindInvalidMessageFormat ErrorKind = "invalid-message-format"
	ErrKindPermissionDenied     ErrorKind = "permission-denied"
	ErrKindUnknownPermission    ErrorKind = "unknown-permission"
	ErrKindChatFeatureDisabled  ErrorKind = "chat-feature-not-enabled"
	ErrKindDatabase             ErrorKind = "database"

	// user administration
	ErrKindUsernameExists         ErrorKind = "username-exists"
	ErrKindUserNotFound           ErrorKind = "user-not-found"
	ErrKindUserNotOnline          ErrorKind = "user-not-online"
	ErrKindCannotEditSelf         ErrorKind = "cannot-edit-self"
	ErrKindCannotDeleteSelf       ErrorKind = "cannot-delete-self"
	ErrKindCannotKickSelf         ErrorKind = "cannot-kick-self"
	ErrKindCannotKickAdmin        ErrorKind = "cannot-kick-admin"
	ErrKindCannotMessageSelf      ErrorKind = "cannot-message-self"
	ErrKindCannotDeleteLastAdmin  ErrorKind = "cannot-delete-last-admin"
	ErrKindCannotDemoteLastAdmin  ErrorKind = "cannot-demote-last-admin"
	ErrKindCannotDisableLastAdmin ErrorKind = "cannot-disable-last-admin"
	ErrKindAdminRequired          ErrorKind = "admin-required"
	ErrKindMaxConnectionsInvalid  ErrorKind = "max-connections-invalid"

	// input validation
	ErrKindUsernameEmpty            ErrorKind = "username-empty"
	ErrKindUsernameTooLong          ErrorKind = "username-too-long"
	ErrKindUsernameInvalidChars     ErrorKind = "username-invalid-chars"
	ErrKindPasswordEmpty            ErrorKind = "password-empty"
	ErrKindPasswordTooLong          ErrorKind = "password-too-long"
	ErrKindMessageEmpty             ErrorKind = "message-empty"
	ErrKindMessageTooLong           ErrorKind = "message-too-long"
	ErrKindMessageNewlines          ErrorKind = "message-contains-newlines"
	ErrKindMessageInvalidChars      ErrorKind = "message-invalid-chars"
	ErrKindTopicTooLong             ErrorKind = "topic-too-long"
	ErrKindTopicNewlines            ErrorKind = "topic-contains-newlines"
	ErrKindTopicInvalidChars        ErrorKind = "topic-invalid-chars"
	ErrKindLocaleTooLong            ErrorKind = "locale-too-long"
	ErrKindLocaleInvalidChars       ErrorKind = "locale-invalid-chars"
	ErrKindFeaturesTooMany          ErrorKind = "features-too-many"
	ErrKindFeatureEmpty             ErrorKind = "feature-empty"
	ErrKindFeatureTooLong           ErrorKind = "feature-too-long"
	ErrKindFeatureInvalidChars      ErrorKind = "feature-invalid-chars"
	ErrKindPermissionsTooMany       ErrorKind = "permissions-too-many"
	ErrKindPermissionEmpty          ErrorKind = "permission-empty"
	ErrKindPermissionTooLong        ErrorKind = "permission-too-long"
	ErrKindPermissionInvalidChars   ErrorKind = "permission-invalid-chars"
	ErrKindAvatarTooLarge           ErrorKind = "avatar-too-large"
	ErrKindAvatarInvalidFormat      ErrorKind = "avatar-invalid-format"
	ErrKindAvatarUnsupportedType    ErrorKind = "avatar-unsupported-type"
	ErrKindServerNameEmpty          ErrorKind = "server-name-empty"
	ErrKindServerNameTooLong        ErrorKind = "server-name-too-long"
	ErrKindServerNameNewlines       ErrorKind = "server-name-contains-newlines"
	ErrKindServerNameInvalidChars   ErrorKind = "server-name-invalid-chars"
	ErrKindServerDescTooLong        ErrorKind = "server-description-too-long"
	ErrKindServerDescNewlines       ErrorKind = "server-description-contains-newlines"
	ErrKindServerDescInvalidChars   ErrorKind = "server-description-invalid-chars"
	ErrKindServerImageTooLarge      ErrorKind = "server-image-too-large"
	ErrKindServerImageInvalidFormat ErrorKind = "server-image-invalid-format"
	ErrKindServerImageUnsupported   ErrorKind = "server-image-unsupported-type"
)

// Error is a protocol-visible failure: a kind plus the placeholder values its
// localized message template needs. It implements error so services can
// return it through ordinary error plumbing.
type Error struct {
	Kind   ErrorKind
	Params map[string]string
}

func NewError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

// NewErrorWith builds an error with placeholder params given as alternating
// key/value pairs.
func NewErrorWith(kind ErrorKind, kv ...string) *Error {
	params := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return &Error{Kind: kind, Params: params}
}

func (e *Error) Error() string {
	if len(e.Params) == 0 {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s %v", e.Kind, e.Params)
}

// SessionFatal reports whether this kind closes the session after being
// surfaced to the client. invalid-credentials is handled separately: the
// session allows a single re-Login before closing.
func (e *Error) SessionFatal() bool {
	switch e.Kind {
	case ErrKindHandshakeRequired, ErrKindHandshakeAlreadyCompleted,
		ErrKindAlreadyLoggedIn, ErrKindAccountDeleted,
		ErrKindAccountDisabledByAdmin, ErrKindVersionMajorMismatch,
		ErrKindInvalidMessageFormat:
		return true
	}
	return false
}

// AsProtocolError normalizes any error into a protocol error, mapping
// unexpected failures to the generic database kind.
func AsProtocolError(err error) *Error {
	if perr, ok := err.(*Error); ok {
		return perr
	}
	return NewError(ErrKindDatabase)
}
