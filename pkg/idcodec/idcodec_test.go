package idcodec_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/pkg/idcodec"
)

const testKey = "00112233445566778899aabbccddeeff"

func TestRoundTripAllMinLengths(t *testing.T) {
	ids := []string{"1", "42", "123456789", "10_20", "a%5Fb_7"}

	for _, staticIDs := range []bool{true, false} {
		for minLength := idcodec.MinLengthFloor; minLength <= idcodec.MinLengthCeil; minLength++ {
			c, err := idcodec.New(testKey, "users", minLength, staticIDs)
			require.NoError(t, err)

			for _, id := range ids {
				token, err := c.Encode(id, id)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, len(token), minLength)

				got, err := c.Decode(token)
				require.NoError(t, err,
					"static=%v minLength=%d id=%q", staticIDs, minLength, id)
				assert.Equal(t, id, got)
			}
		}
	}
}

func TestStaticIDsDeterministic(t *testing.T) {
	c, err := idcodec.New(testKey, "users", 24, true)
	require.NoError(t, err)

	first, err := c.Encode("7", "7")
	require.NoError(t, err)
	second, err := c.Encode("7", "7")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a different cell seed produces a different token
	other, err := c.Encode("7", "8")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestRandomIDsDiffer(t *testing.T) {
	c, err := idcodec.New(testKey, "users", 24, false)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := c.Encode("7", "7")
		require.NoError(t, err)
		assert.False(t, seen[token], "token repeated: %s", token)
		seen[token] = true

		got, err := c.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, "7", got)
	}
}

func TestDomainsDoNotOverlap(t *testing.T) {
	users, err := idcodec.New(testKey, "users", 24, true)
	require.NoError(t, err)
	orders, err := idcodec.New(testKey, "orders", 24, true)
	require.NoError(t, err)

	token, err := users.Encode("7", "7")
	require.NoError(t, err)

	// the same key under another domain must not authenticate the token
	_, err = orders.Decode(token)
	assert.ErrorIs(t, err, idcodec.ErrIntegrity)
}

func TestTamperedTokenFailsIntegrity(t *testing.T) {
	c, err := idcodec.New(testKey, "users", 24, true)
	require.NoError(t, err)

	token, err := c.Encode("123456", "123456")
	require.NoError(t, err)

	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	for pos := 0; pos < len(token); pos++ {
		t.Run(fmt.Sprintf("flip position %d", pos), func(t *testing.T) {
			replacement := alphabet[(strings.IndexByte(alphabet, token[pos])+1)%len(alphabet)]
			tampered := token[:pos] + string(replacement) + token[pos+1:]

			_, err := c.Decode(tampered)
			assert.ErrorIs(t, err, idcodec.ErrIntegrity)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c, err := idcodec.New(testKey, "users", 24, true)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"too short", "abc"},
		{"outside alphabet", strings.Repeat("!", 40)},
		{"plausible length", strings.Repeat("A", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.token)
			assert.ErrorIs(t, err, idcodec.ErrIntegrity)
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		minLength int
	}{
		{"short key", "0011", 24},
		{"non-hex key", strings.Repeat("zz", 16), 24},
		{"minLength below floor", testKey, idcodec.MinLengthFloor - 1},
		{"minLength above ceiling", testKey, idcodec.MinLengthCeil + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idcodec.New(tt.key, "users", tt.minLength, true)
			assert.ErrorIs(t, err, idcodec.ErrConfig)
		})
	}
}
