package model

import (
	"github.com/Masterminds/semver/v3"
)

// ServerVersion is the protocol/server release version advertised in the
// handshake.
const ServerVersion = "1.2.0"

// MaxVersionLength bounds the handshake version string.
const MaxVersionLength = 32

// CheckClientVersion applies the compatibility rule: the client major must
// equal the server major, and within the same major the client must not be
// newer than the server. Older clients within the major are accepted.
func CheckClientVersion(version string) *Error {
	if version == "" || len(version) > MaxVersionLength {
		return NewErrorWith(ErrKindVersionInvalid, "version", version)
	}
	client, err := semver.StrictNewVersion(version)
	if err != nil {
		return NewErrorWith(ErrKindVersionInvalid, "version", version)
	}
	server := semver.MustParse(ServerVersion)
	if client.Major() != server.Major() {
		return NewErrorWith(ErrKindVersionMajorMismatch,
			"client_version", version,
			"server_version", ServerVersion)
	}
	if client.GreaterThan(server) {
		return NewErrorWith(ErrKindVersionClientTooNew,
			"client_version", version,
			"server_version", ServerVersion)
	}
	return nil
}
