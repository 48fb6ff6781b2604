package keys

import (
	"crypto"
	"fmt"
)

// AccountKey is the persisted form of an ACME account key: the algorithm
// identifier and the PEM encoded private key.
type AccountKey struct {
	KeyType   string `json:"KeyType"`
	KeyExport string `json:"KeyExport"`
}

// NewAccountKey generates a fresh account key for the algorithm.
func NewAccountKey(alg Algorithm) (*AccountKey, *Signer, error) {
	key, err := alg.Generate()
	if err != nil {
		return nil, nil, err
	}
	export, err := SignerToPEM(key)
	if err != nil {
		return nil, nil, err
	}
	return &AccountKey{KeyType: alg.String(), KeyExport: export},
		&Signer{Algorithm: alg, Key: key},
		nil
}

// Signer reconstructs the signing key described by the AccountKey. The same
// AccountKey always yields the same key.
func (k AccountKey) Signer() (*Signer, error) {
	alg, err := ParseAlgorithm(k.KeyType)
	if err != nil {
		return nil, err
	}
	key, err := SignerFromPEM(k.KeyExport)
	if err != nil {
		return nil, fmt.Errorf("importing %s account key: %w", alg, err)
	}
	if err := alg.check(key); err != nil {
		return nil, err
	}
	return &Signer{Algorithm: alg, Key: key}, nil
}

// Signer pairs a private key with the Algorithm used to produce JWS with it.
type Signer struct {
	Algorithm Algorithm
	Key       crypto.Signer
}

// NewSigner wraps an existing key, inferring its Algorithm.
func NewSigner(key crypto.Signer) (*Signer, error) {
	alg, err := AlgorithmForSigner(key)
	if err != nil {
		return nil, err
	}
	return &Signer{Algorithm: alg, Key: key}, nil
}

// Export returns the persisted form of the Signer.
func (s *Signer) Export() (*AccountKey, error) {
	export, err := SignerToPEM(s.Key)
	if err != nil {
		return nil, err
	}
	return &AccountKey{KeyType: s.Algorithm.String(), KeyExport: export}, nil
}

// Thumbprint returns the JWK thumbprint of the Signer's public key.
func (s *Signer) Thumbprint() string {
	return JWKThumbprint(s.Key)
}

// KeyAuth returns the key authorization for a challenge token.
func (s *Signer) KeyAuth(token string) string {
	return KeyAuth(s.Key, token)
}
