package client

import (
	"errors"
	"fmt"

	"github.com/cpu/vaultcert/acme/keys"
	jose "github.com/go-jose/go-jose/v4"
)

// SigningOptions allows specifying signature related options when calling
// the Client's Sign function.
type SigningOptions struct {
	// If true, embed the signer's public key as a JWK in the signed JWS instead
	// of using a KeyID header. This is required for the newAccount endpoint.
	// Setting EmbedKey to true is mutually exclusive with a non-empty KeyID.
	EmbedKey bool
	// If not-empty, a KeyID value to use for the JWS Key ID header to identify
	// the ACME account. If empty the active account's ID is used.
	KeyID string
	// If not-nil, the Signer used to sign the JWS. If nil the active account's
	// Signer is used.
	Signer *keys.Signer
	// NonceSource provides the nonce protected header value for the produced
	// JWS.
	NonceSource jose.NonceSource
}

// validate checks that the SigningOptions are sensible. It must only be
// called after populating defaults from the active account.
func (opts *SigningOptions) validate() error {
	if opts.KeyID != "" && opts.EmbedKey {
		return fmt.Errorf("SigningOptions validate: cannot specify both KeyID and EmbedKey")
	}
	if opts.KeyID == "" && !opts.EmbedKey {
		return fmt.Errorf("SigningOptions validate: you must specify a KeyID or EmbedKey")
	}
	if opts.NonceSource == nil {
		return fmt.Errorf("SigningOptions validate: you must specify a NonceSource")
	}
	if opts.Signer == nil || opts.Signer.Key == nil {
		return fmt.Errorf("SigningOptions validate: you must specify a signer")
	}
	return nil
}

// Sign produces a flattened JSON serialized JWS of data with a protected url
// header, according to the SigningOptions provided.
func (c *Client) Sign(url string, data []byte, opts SigningOptions) ([]byte, error) {
	if opts.Signer == nil {
		opts.Signer = c.Signer()
	}
	if opts.Signer == nil {
		return nil, errors.New("no active account signer and no Signer in SigningOptions")
	}
	if !opts.EmbedKey && opts.KeyID == "" {
		opts.KeyID = c.ActiveAccountID()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	alg := opts.Signer.Algorithm.SignatureAlgorithm()
	if alg == "" {
		return nil, &keys.UnsupportedKeyTypeError{KeyType: opts.Signer.Algorithm.String()}
	}

	joseOpts := &jose.SignerOptions{
		NonceSource: opts.NonceSource,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	}

	var signingKey jose.SigningKey
	if opts.EmbedKey {
		joseOpts.EmbedJWK = true
		signingKey = jose.SigningKey{
			Key:       opts.Signer.Key,
			Algorithm: alg,
		}
	} else {
		signingKey = jose.SigningKey{
			Key: jose.JSONWebKey{
				Key:       opts.Signer.Key,
				Algorithm: string(alg),
				KeyID:     opts.KeyID,
			},
			Algorithm: alg,
		}
	}

	signer, err := jose.NewSigner(signingKey, joseOpts)
	if err != nil {
		return nil, err
	}

	signed, err := signer.Sign(data)
	if err != nil {
		return nil, err
	}
	return []byte(signed.FullSerialize()), nil
}
