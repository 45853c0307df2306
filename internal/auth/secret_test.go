package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret_RoundTrip(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, VerifySecret(hash, "correct horse battery staple"))
	assert.False(t, VerifySecret(hash, "correct horse battery stapl"))
	assert.False(t, VerifySecret(hash, ""))
}

func TestHashSecret_Format(t *testing.T) {
	hash, err := HashSecret("1234")
	require.NoError(t, err)

	digestHex, saltHex, ok := strings.Cut(hash, ".")
	require.True(t, ok)
	assert.Len(t, digestHex, scryptKeyLen*2)
	assert.Len(t, saltHex, saltLen*2)
}

func TestHashSecret_FreshSaltPerCall(t *testing.T) {
	h1, err := HashSecret("1234")
	require.NoError(t, err)
	h2, err := HashSecret("1234")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, VerifySecret(h1, "1234"))
	assert.True(t, VerifySecret(h2, "1234"))
}

func TestHashSecret_EmptyRejected(t *testing.T) {
	_, err := HashSecret("")
	assert.Error(t, err)
}

func TestVerifySecret_MalformedStoredHashFailsClosed(t *testing.T) {
	cases := []string{
		"",
		"no-separator",
		".abcdef",
		"abcdef.",
		"nothex.deadbeef",
		"deadbeef.nothex",
		// Valid hex but wrong digest length
		"deadbeef.deadbeefdeadbeefdeadbeefdeadbeef",
	}

	for _, tc := range cases {
		assert.False(t, VerifySecret(tc, "anything"), "accepted stored hash %q", tc)
	}
}

func TestVerifySecret_DistinctSecretsRejected(t *testing.T) {
	hash, err := HashSecret("secret-one")
	require.NoError(t, err)

	for _, other := range []string{"secret-two", "Secret-one", "secret-one "} {
		assert.False(t, VerifySecret(hash, other))
	}
}
