// Package validation holds the input validators applied to every client
// frame before any state mutation. Bounds and character classes follow the
// wire protocol contract; failures map onto protocol error kinds.
package validation

import (
	"strings"
	"unicode"

	"github.com/zquestz/nexus/domain/model"
)

const (
	MaxUsernameLength          = 32
	MaxPasswordLength          = 256
	MaxMessageLength           = 1024
	MaxChatTopicLength         = 256
	MaxLocaleLength            = 16
	MaxFeaturesCount           = 16
	MaxFeatureLength           = 32
	MaxPermissionsCount        = 16
	MaxPermissionLength        = 32
	MaxServerNameLength        = 64
	MaxServerDescriptionLength = 256
	MaxAvatarDataURILength     = 176_000
	MaxServerImageDataURILen   = 700_000
)

// AllowedAvatarMIMETypes are accepted for user avatars.
var AllowedAvatarMIMETypes = []string{"image/png", "image/webp", "image/svg+xml"}

// AllowedImageMIMETypes are accepted for the server image.
var AllowedImageMIMETypes = []string{"image/png", "image/webp", "image/svg+xml", "image/jpeg"}

// Username permits letters (any script) and printable ASCII symbols, but no
// whitespace or control characters. Length is counted in runes so non-ASCII
// names are not penalized.
func Username(username string) *model.Error {
	if username == "" {
		return model.NewError(model.ErrKindUsernameEmpty)
	}
	if len([]rune(username)) > MaxUsernameLength {
		return model.NewErrorWith(model.ErrKindUsernameTooLong, "username", username)
	}
	for _, ch := range username {
		if !unicode.IsLetter(ch) && !isASCIIGraphic(ch) {
			return model.NewErrorWith(model.ErrKindUsernameInvalidChars, "username", username)
		}
	}
	return nil
}

func Password(password string) *model.Error {
	if password == "" {
		return model.NewError(model.ErrKindPasswordEmpty)
	}
	if len(password) > MaxPasswordLength {
		return model.NewError(model.ErrKindPasswordTooLong)
	}
	return nil
}

// Message rejects empty or whitespace-only text, over-long text, and every
// control character. Newlines get their own kind so clients can hint at the
// cause.
func Message(message string) *model.Error {
	if strings.TrimSpace(message) == "" {
		return model.NewError(model.ErrKindMessageEmpty)
	}
	if len(message) > MaxMessageLength {
		return model.NewError(model.ErrKindMessageTooLong)
	}
	for _, ch := range message {
		if unicode.IsControl(ch) {
			if ch == '\n' || ch == '\r' {
				return model.NewError(model.ErrKindMessageNewlines)
			}
			return model.NewError(model.ErrKindMessageInvalidChars)
		}
	}
	return nil
}

// ChatTopic allows the empty string (clearing the topic).
func ChatTopic(topic string) *model.Error {
	if len(topic) > MaxChatTopicLength {
		return model.NewError(model.ErrKindTopicTooLong)
	}
	for _, ch := range topic {
		if unicode.IsControl(ch) {
			if ch == '\n' || ch == '\r' {
				return model.NewError(model.ErrKindTopicNewlines)
			}
			return model.NewError(model.ErrKindTopicInvalidChars)
		}
	}
	return nil
}

func Locale(locale string) *model.Error {
	if len(locale) > MaxLocaleLength {
		return model.NewError(model.ErrKindLocaleTooLong)
	}
	for _, ch := range locale {
		if unicode.IsControl(ch) {
			return model.NewError(model.ErrKindLocaleInvalidChars)
		}
	}
	return nil
}

func Features(features []string) *model.Error {
	if len(features) > MaxFeaturesCount {
		return model.NewError(model.ErrKindFeaturesTooMany)
	}
	for _, feature := range features {
		if feature == "" {
			return model.NewError(model.ErrKindFeatureEmpty)
		}
		if len(feature) > MaxFeatureLength {
			return model.NewError(model.ErrKindFeatureTooLong)
		}
		for _, ch := range feature {
			if unicode.IsControl(ch) {
				return model.NewError(model.ErrKindFeatureInvalidChars)
			}
		}
	}
	return nil
}

// PermissionNames validates shape only; membership in the closed set is
// checked separately so unknown-permission can carry the offending name.
func PermissionNames(permissions []string) *model.Error {
	if len(permissions) > MaxPermissionsCount {
		return model.NewError(model.ErrKindPermissionsTooMany)
	}
	for _, permission := range permissions {
		if permission == "" {
			return model.NewError(model.ErrKindPermissionEmpty)
		}
		if len(permission) > MaxPermissionLength {
			return model.NewError(model.ErrKindPermissionTooLong)
		}
		for _, ch := range permission {
			if unicode.IsControl(ch) {
				return model.NewError(model.ErrKindPermissionInvalidChars)
			}
		}
	}
	return nil
}

func ServerName(name string) *model.Error {
	if strings.TrimSpace(name) == "" {
		return model.NewError(model.ErrKindServerNameEmpty)
	}
	if len(name) > MaxServerNameLength {
		return model.NewError(model.ErrKindServerNameTooLong)
	}
	for _, ch := range name {
		if unicode.IsControl(ch) {
			if ch == '\n' || ch == '\r' {
				return model.NewError(model.ErrKindServerNameNewlines)
			}
			return model.NewError(model.ErrKindServerNameInvalidChars)
		}
	}
	return nil
}

func ServerDescription(description string) *model.Error {
	if len(description) > MaxServerDescriptionLength {
		return model.NewError(model.ErrKindServerDescTooLong)
	}
	for _, ch := range description {
		if unicode.IsControl(ch) {
			if ch == '\n' || ch == '\r' {
				return model.NewError(model.ErrKindServerDescNewlines)
			}
			return model.NewError(model.ErrKindServerDescInvalidChars)
		}
	}
	return nil
}

// Avatar validates a user avatar data URI. Empty means "no avatar".
func Avatar(avatar string) *model.Error {
	if avatar == "" {
		return nil
	}
	switch checkImageDataURI(avatar, MaxAvatarDataURILength, AllowedAvatarMIMETypes) {
	case uriTooLarge:
		return model.NewError(model.ErrKindAvatarTooLarge)
	case uriInvalidFormat:
		return model.NewError(model.ErrKindAvatarInvalidFormat)
	case uriUnsupportedType:
		return model.NewError(model.ErrKindAvatarUnsupportedType)
	}
	return nil
}

// ServerImage validates the server image data URI. Empty clears the image.
func ServerImage(image string) *model.Error {
	if image == "" {
		return nil
	}
	switch checkImageDataURI(image, MaxServerImageDataURILen, AllowedImageMIMETypes) {
	case uriTooLarge:
		return model.NewError(model.ErrKindServerImageTooLarge)
	case uriInvalidFormat:
		return model.NewError(model.ErrKindServerImageInvalidFormat)
	case uriUnsupportedType:
		return model.NewError(model.ErrKindServerImageUnsupported)
	}
	return nil
}

type uriResult int

const (
	uriOK uriResult = iota
	uriTooLarge
	uriInvalidFormat
	uriUnsupportedType
)

func checkImageDataURI(uri string, maxLength int, allowed []string) uriResult {
	// Cheapest check first.
	if len(uri) > maxLength {
		return uriTooLarge
	}
	if !strings.HasPrefix(uri, "data:") {
		return uriInvalidFormat
	}
	marker := strings.Index(uri, ";base64,")
	if marker < 0 {
		return uriInvalidFormat
	}
	mime := uri[len("data:"):marker]
	for _, m := range allowed {
		if mime == m {
			return uriOK
		}
	}
	return uriUnsupportedType
}

func isASCIIGraphic(ch rune) bool {
	return ch > 0x20 && ch < 0x7f
}
