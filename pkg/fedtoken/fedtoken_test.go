package fedtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-isv/qindex-broker/pkg/federr"
)

// compact builds a three-segment token whose payload encodes the given
// claims without base64 padding, like the real issuer does.
func compact(t *testing.T, claims map[string]any) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return "eyJhbGciOiJSUzI1NiJ9." + encoded + ".sig"
}

func TestDecodeIdentityContext(t *testing.T) {
	t.Parallel()

	// Vary the payload length so every missing-padding case (0-3) is hit.
	contexts := []string{
		"AQoJctx",
		"AQoJctx1",
		"AQoJctx12",
		"AQoJctx123",
	}

	for _, ictx := range contexts {
		t.Run(ictx, func(t *testing.T) {
			t.Parallel()

			raw := compact(t, map[string]any{
				IdentityContextClaim: ictx,
				"sub":                "user1",
			})

			token, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, token.Raw)

			got, err := token.IdentityContext()
			require.NoError(t, err)
			assert.Equal(t, ictx, got)

			sub, ok := token.Claims().String("sub")
			require.True(t, ok)
			assert.Equal(t, "user1", sub)
		})
	}
}

func TestDecodePaddingLengths(t *testing.T) {
	t.Parallel()

	// Raw JSON payloads of increasing length cover all four pad counts.
	for _, claims := range []map[string]any{
		{"a": "x"},
		{"a": "xy"},
		{"a": "xyz"},
		{"a": "xyzw"},
	} {
		raw := compact(t, claims)
		token, err := Decode(raw)
		require.NoError(t, err)

		got, ok := token.Claims().String("a")
		require.True(t, ok)
		assert.Equal(t, claims["a"], got)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty token", raw: ""},
		{name: "no separator", raw: "justonechunk"},
		{name: "payload not base64", raw: "header.!!!.sig"},
		{name: "payload not json", raw: "header." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.True(t, federr.Is(err, federr.ClassAssertionDecode))
			assert.False(t, federr.IsRetryable(err))
		})
	}
}

func TestIdentityContextMissing(t *testing.T) {
	t.Parallel()

	token, err := Decode(compact(t, map[string]any{"sub": "user1"}))
	require.NoError(t, err)

	_, err = token.IdentityContext()
	require.Error(t, err)
	assert.True(t, federr.Is(err, federr.ClassAssertionDecode))
	assert.Contains(t, err.Error(), IdentityContextClaim)
}

func TestIdentityContextNotAString(t *testing.T) {
	t.Parallel()

	token, err := Decode(compact(t, map[string]any{IdentityContextClaim: 42}))
	require.NoError(t, err)

	_, err = token.IdentityContext()
	assert.True(t, federr.Is(err, federr.ClassAssertionDecode))
}

func TestGetAbsentClaim(t *testing.T) {
	t.Parallel()

	token, err := Decode(compact(t, map[string]any{"sub": "user1"}))
	require.NoError(t, err)

	_, ok := token.Claims().Get("missing")
	assert.False(t, ok)

	_, ok = token.Claims().String("missing")
	assert.False(t, ok)
}

func TestDecodeTwoSegments(t *testing.T) {
	t.Parallel()

	// A token with no signature segment still has a decodable payload;
	// signature presence is not this package's concern.
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u"}`))
	raw := "header." + payload

	require.Equal(t, 1, strings.Count(raw, "."))
	token, err := Decode(raw)
	require.NoError(t, err)

	sub, ok := token.Claims().String("sub")
	require.True(t, ok)
	assert.Equal(t, "u", sub)
}
