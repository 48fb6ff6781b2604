package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	testCases := []struct {
		keyType  string
		expected Algorithm
		jwsAlg   jose.SignatureAlgorithm
	}{
		{"ES256", ES256, jose.ES256},
		{"ES384", ES384, jose.ES384},
		{"ES512", ES512, jose.ES512},
		{"RS256", RS256, jose.RS256},
		{"RS384", RS384, jose.RS384},
		{"RS512", RS512, jose.RS512},
	}
	for _, tc := range testCases {
		t.Run(tc.keyType, func(t *testing.T) {
			alg, err := ParseAlgorithm(tc.keyType)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, alg)
			assert.Equal(t, tc.jwsAlg, alg.SignatureAlgorithm())
			assert.Equal(t, tc.keyType, alg.String())
		})
	}
}

func TestParseAlgorithmUnsupported(t *testing.T) {
	for _, keyType := range []string{"XX128", "ES128", "RS", "", "ESabc", "PS256"} {
		t.Run(keyType, func(t *testing.T) {
			_, err := ParseAlgorithm(keyType)
			require.Error(t, err)

			var unsupported *UnsupportedKeyTypeError
			require.True(t, errors.As(err, &unsupported))
			assert.Equal(t, keyType, unsupported.KeyType)
			assert.Contains(t, err.Error(), keyType)
		})
	}
}

func TestAccountKeySignerES256(t *testing.T) {
	ak, _, err := NewAccountKey(ES256)
	require.NoError(t, err)
	assert.Equal(t, "ES256", ak.KeyType)

	signer, err := ak.Signer()
	require.NoError(t, err)
	ecKey, ok := signer.Key.(*ecdsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, elliptic.P256(), ecKey.Curve)
	assert.Equal(t, ES256, signer.Algorithm)

	// Importing the same export twice yields the same key.
	again, err := ak.Signer()
	require.NoError(t, err)
	assert.True(t, ecKey.Equal(again.Key))
	assert.Equal(t, signer.Thumbprint(), again.Thumbprint())
}

func TestAccountKeySignerRS384(t *testing.T) {
	ak, _, err := NewAccountKey(RS384)
	require.NoError(t, err)

	signer, err := ak.Signer()
	require.NoError(t, err)
	rsaKey, ok := signer.Key.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, RSAKeyBits, rsaKey.N.BitLen())
	assert.Equal(t, jose.RS384, signer.Algorithm.SignatureAlgorithm())
}

func TestAccountKeySignerMismatch(t *testing.T) {
	ak, _, err := NewAccountKey(ES384)
	require.NoError(t, err)

	ak.KeyType = "ES256"
	_, err = ak.Signer()
	require.Error(t, err)

	ak.KeyType = "RS256"
	_, err = ak.Signer()
	require.Error(t, err)
}

func TestAccountKeySignerUnsupported(t *testing.T) {
	ak := AccountKey{KeyType: "XX128", KeyExport: "irrelevant"}
	_, err := ak.Signer()
	var unsupported *UnsupportedKeyTypeError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "XX128", unsupported.KeyType)
}

func TestAccountKeySignerBadExport(t *testing.T) {
	ak := AccountKey{KeyType: "ES256", KeyExport: "not pem"}
	_, err := ak.Signer()
	require.Error(t, err)
}

func TestDNS01Value(t *testing.T) {
	value := DNS01Value("token.thumbprint")
	assert.Equal(t, "61rBZ_4knHblO0MNoxFsXZ_eTFUHum0B6IVRbhvUn5I", value)
	assert.NotEqual(t, value, DNS01Value("token.other"))
}

func TestKeyAuth(t *testing.T) {
	_, signer, err := NewAccountKey(ES256)
	require.NoError(t, err)

	keyAuth := signer.KeyAuth("abc")
	assert.Equal(t, "abc."+signer.Thumbprint(), keyAuth)
}
