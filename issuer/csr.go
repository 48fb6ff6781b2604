package issuer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cpu/vaultcert/acme/client"
	"github.com/cpu/vaultcert/acme/keys"
)

// LocalCSR is a certificate key and CSR generated on this machine, for runs
// that do not hand the certificate to a vault.
type LocalCSR struct {
	Key crypto.Signer
	DER []byte
	PEM []byte
}

// NewLocalCSR generates a P-256 key and a CSR for names. The common name is
// the first name.
func NewLocalCSR(names []string) (*LocalCSR, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, _, pemCSR, err := client.CSR("", names, key)
	if err != nil {
		return nil, err
	}
	return &LocalCSR{Key: key, DER: der, PEM: []byte(pemCSR)}, nil
}

// WriteFiles writes privkey.pem, csr.pem and fullchain.pem for bundle into
// dir.
func (l *LocalCSR) WriteFiles(dir string, bundle *Bundle) error {
	if bundle == nil || len(bundle.PEM) == 0 {
		return errors.New("no certificate chain to write")
	}
	keyPEM, err := keys.SignerToPEM(l.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "privkey.pem"), []byte(keyPEM), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "csr.pem"), l.PEM, 0o644); err != nil {
		return fmt.Errorf("writing CSR: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fullchain.pem"), bundle.PEM, 0o644); err != nil {
		return fmt.Errorf("writing certificate chain: %w", err)
	}
	return nil
}
