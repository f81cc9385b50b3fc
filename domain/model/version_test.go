package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckClientVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		wantKind ErrorKind
	}{
		{"exact match", "1.2.0", ""},
		{"older minor", "1.0.0", ""},
		{"older patch", "1.1.9", ""},
		{"newer patch", "1.2.1", ErrKindVersionClientTooNew},
		{"newer minor", "1.9.0", ErrKindVersionClientTooNew},
		{"older major", "0.9.0", ErrKindVersionMajorMismatch},
		{"newer major", "2.0.0", ErrKindVersionMajorMismatch},
		{"empty", "", ErrKindVersionInvalid},
		{"garbage", "latest", ErrKindVersionInvalid},
		{"loose semver", "1.2", ErrKindVersionInvalid},
		{"oversized", strings.Repeat("1", MaxVersionLength+1), ErrKindVersionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := CheckClientVersion(tt.version)
			if tt.wantKind == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantKind, verr.Kind)
		})
	}
}

func TestCheckClientVersionParams(t *testing.T) {
	verr := CheckClientVersion("2.0.0")
	require.NotNil(t, verr)
	assert.Equal(t, "2.0.0", verr.Params["client_version"])
	assert.Equal(t, ServerVersion, verr.Params["server_version"])
}
