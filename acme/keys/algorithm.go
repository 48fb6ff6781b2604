package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strconv"

	jose "github.com/go-jose/go-jose/v4"
)

// Family is the key family of an account key algorithm.
type Family int

const (
	EllipticCurve Family = iota + 1
	RSA
)

func (f Family) prefix() string {
	switch f {
	case EllipticCurve:
		return "ES"
	case RSA:
		return "RS"
	}
	return "??"
}

// RSAKeyBits is the modulus size of newly generated RSA account keys.
const RSAKeyBits = 2048

// Algorithm identifies an account key's family and the hash size used for JWS
// signatures, e.g. ES256 or RS384. The zero value is not valid; use
// ParseAlgorithm.
type Algorithm struct {
	Family Family
	Size   int
}

var (
	ES256 = Algorithm{Family: EllipticCurve, Size: 256}
	ES384 = Algorithm{Family: EllipticCurve, Size: 384}
	ES512 = Algorithm{Family: EllipticCurve, Size: 512}
	RS256 = Algorithm{Family: RSA, Size: 256}
	RS384 = Algorithm{Family: RSA, Size: 384}
	RS512 = Algorithm{Family: RSA, Size: 512}
)

// UnsupportedKeyTypeError is returned for an account key type identifier that
// does not name a supported algorithm.
type UnsupportedKeyTypeError struct {
	KeyType string
}

func (e *UnsupportedKeyTypeError) Error() string {
	return fmt.Sprintf("unknown or unsupported key type %q", e.KeyType)
}

// ParseAlgorithm decodes a key type identifier such as "ES256" into an
// Algorithm.
func ParseAlgorithm(keyType string) (Algorithm, error) {
	unsupported := &UnsupportedKeyTypeError{KeyType: keyType}
	if len(keyType) < 3 {
		return Algorithm{}, unsupported
	}

	var alg Algorithm
	switch keyType[:2] {
	case "ES":
		alg.Family = EllipticCurve
	case "RS":
		alg.Family = RSA
	default:
		return Algorithm{}, unsupported
	}

	size, err := strconv.Atoi(keyType[2:])
	if err != nil {
		return Algorithm{}, unsupported
	}
	alg.Size = size

	if alg.SignatureAlgorithm() == "" {
		return Algorithm{}, unsupported
	}
	return alg, nil
}

func (a Algorithm) String() string {
	return fmt.Sprintf("%s%d", a.Family.prefix(), a.Size)
}

// SignatureAlgorithm returns the JWS "alg" value, or an empty string for an
// unsupported Algorithm.
func (a Algorithm) SignatureAlgorithm() jose.SignatureAlgorithm {
	switch a {
	case ES256:
		return jose.ES256
	case ES384:
		return jose.ES384
	case ES512:
		return jose.ES512
	case RS256:
		return jose.RS256
	case RS384:
		return jose.RS384
	case RS512:
		return jose.RS512
	}
	return ""
}

// Curve returns the elliptic curve for an EllipticCurve Algorithm and nil
// otherwise. ES512 uses P-521.
func (a Algorithm) Curve() elliptic.Curve {
	if a.Family != EllipticCurve {
		return nil
	}
	switch a.Size {
	case 256:
		return elliptic.P256()
	case 384:
		return elliptic.P384()
	case 512:
		return elliptic.P521()
	}
	return nil
}

// Generate creates a new random private key for the Algorithm.
func (a Algorithm) Generate() (crypto.Signer, error) {
	switch a.Family {
	case EllipticCurve:
		curve := a.Curve()
		if curve == nil {
			return nil, &UnsupportedKeyTypeError{KeyType: a.String()}
		}
		return ecdsa.GenerateKey(curve, rand.Reader)
	case RSA:
		if a.SignatureAlgorithm() == "" {
			return nil, &UnsupportedKeyTypeError{KeyType: a.String()}
		}
		return rsa.GenerateKey(rand.Reader, RSAKeyBits)
	}
	return nil, &UnsupportedKeyTypeError{KeyType: a.String()}
}

// check verifies that signer is a key of the Algorithm's family (and curve).
func (a Algorithm) check(signer crypto.Signer) error {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		if a.Family != EllipticCurve {
			return fmt.Errorf("key type %s does not match an ECDSA key", a)
		}
		if k.Curve != a.Curve() {
			return fmt.Errorf("key type %s does not match an ECDSA %s key",
				a, k.Curve.Params().Name)
		}
	case *rsa.PrivateKey:
		if a.Family != RSA {
			return fmt.Errorf("key type %s does not match an RSA key", a)
		}
	default:
		return fmt.Errorf("unsupported private key %T", signer)
	}
	return nil
}

// AlgorithmForSigner infers the Algorithm of an existing key. RSA keys map to
// RS256.
func AlgorithmForSigner(signer crypto.Signer) (Algorithm, error) {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return ES256, nil
		case elliptic.P384():
			return ES384, nil
		case elliptic.P521():
			return ES512, nil
		}
		return Algorithm{}, fmt.Errorf("unsupported ECDSA curve %s", k.Curve.Params().Name)
	case *rsa.PrivateKey:
		return RS256, nil
	}
	return Algorithm{}, fmt.Errorf("unsupported private key %T", signer)
}
