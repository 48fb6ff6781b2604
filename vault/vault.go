// Package vault creates Key Vault certificates whose keys never leave the
// vault and merges the signed chain back once issuance completes.
package vault

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates"
	"go.uber.org/zap"
)

const (
	// IssuerUnknown leaves signing to an external CA; Key Vault returns a
	// CSR and waits for a merge.
	IssuerUnknown = "Unknown"
	// IssuerSelf makes Key Vault sign the certificate itself.
	IssuerSelf = "Self"
)

// Request describes the certificate to create.
type Request struct {
	// The X.509 subject, e.g. "CN=example.com".
	Subject string
	// DNS subject alternative names.
	Names []string
	Tags  map[string]string
	// Zero leaves the vault default in place.
	ValidityInMonths int32
}

// Vault creates and completes certificates in one Key Vault.
type Vault struct {
	client *azcertificates.Client
	log    *zap.Logger
}

// New returns a Vault for the vault at vaultURL, e.g.
// "https://example.vault.azure.net/".
func New(vaultURL string, cred azcore.TokenCredential, opts *azcertificates.ClientOptions, log *zap.Logger) (*Vault, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if vaultURL == "" {
		return nil, errors.New("vault: URL must not be empty")
	}
	client, err := azcertificates.NewClient(vaultURL, cred, opts)
	if err != nil {
		return nil, err
	}
	return &Vault{client: client, log: log.With(zap.String("component", "key-vault"))}, nil
}

func policy(issuer string, req Request) *azcertificates.CertificatePolicy {
	names := make([]*string, 0, len(req.Names))
	for _, n := range req.Names {
		names = append(names, to.Ptr(n))
	}
	p := &azcertificates.CertificatePolicy{
		IssuerParameters: &azcertificates.IssuerParameters{
			Name: to.Ptr(issuer),
		},
		KeyProperties: &azcertificates.KeyProperties{
			KeyType: to.Ptr(azcertificates.KeyTypeEC),
			Curve:   to.Ptr(azcertificates.CurveNameP256),
		},
		X509CertificateProperties: &azcertificates.X509CertificateProperties{
			Subject: to.Ptr(req.Subject),
			SubjectAlternativeNames: &azcertificates.SubjectAlternativeNames{
				DNSNames: names,
			},
		},
	}
	if req.ValidityInMonths > 0 {
		p.X509CertificateProperties.ValidityInMonths = to.Ptr(req.ValidityInMonths)
	}
	return p
}

func tags(in map[string]string) map[string]*string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		out[k] = to.Ptr(v)
	}
	return out
}

func (v *Vault) create(ctx context.Context, name, issuer string, req Request) (azcertificates.CertificateOperation, error) {
	if name == "" {
		return azcertificates.CertificateOperation{}, errors.New("vault: certificate name must not be empty")
	}
	if req.Subject == "" {
		return azcertificates.CertificateOperation{}, errors.New("vault: certificate subject must not be empty")
	}
	resp, err := v.client.CreateCertificate(ctx, name, azcertificates.CreateCertificateParameters{
		CertificatePolicy: policy(issuer, req),
		Tags:              tags(req.Tags),
	}, nil)
	if err != nil {
		err = newError(err)
		v.log.Error("creating certificate", zap.String("certificate", name), zap.String("issuer", issuer), zap.Error(err))
		return azcertificates.CertificateOperation{}, err
	}
	op := resp.CertificateOperation
	if op.Error != nil {
		err := fromErrorInfo(op.Error)
		v.log.Error("certificate operation failed", zap.String("certificate", name), zap.Error(err))
		return op, err
	}
	v.log.Info("created certificate",
		zap.String("certificate", name),
		zap.String("issuer", issuer),
		zap.String("status", deref(op.Status)))
	return op, nil
}

// CreatePending creates a certificate signed by an external issuer and
// returns the DER encoded CSR Key Vault generated for it.
func (v *Vault) CreatePending(ctx context.Context, name string, req Request) ([]byte, error) {
	op, err := v.create(ctx, name, IssuerUnknown, req)
	if err != nil {
		return nil, err
	}
	if len(op.CSR) == 0 {
		return nil, fmt.Errorf("vault: pending certificate %q has no CSR", name)
	}
	return op.CSR, nil
}

// CreateSelfSigned creates a certificate Key Vault signs itself. Services
// can bind it while the publicly trusted certificate is being issued.
func (v *Vault) CreateSelfSigned(ctx context.Context, name string, req Request) error {
	_, err := v.create(ctx, name, IssuerSelf, req)
	return err
}

// Merge completes a pending certificate with its signed chain, leaf first.
func (v *Vault) Merge(ctx context.Context, name string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return fmt.Errorf("vault: no certificates to merge into %q", name)
	}
	ders := make([][]byte, 0, len(chain))
	for _, c := range chain {
		ders = append(ders, c.Raw)
	}
	_, err := v.client.MergeCertificate(ctx, name, azcertificates.MergeCertificateParameters{
		X509Certificates: ders,
	}, nil)
	if err != nil {
		err = newError(err)
		v.log.Error("merging certificate", zap.String("certificate", name), zap.Error(err))
		return err
	}
	v.log.Info("merged certificate chain", zap.String("certificate", name), zap.Int("certificates", len(ders)))
	return nil
}

// Expiring is a vault certificate close to its expiry.
type Expiring struct {
	Name    string
	Expires time.Time
}

// ListExpiring returns the certificates expiring before now+within.
func (v *Vault) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]Expiring, error) {
	var out []Expiring
	pager := v.client.NewListCertificatePropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, newError(err)
		}
		for _, c := range page.Value {
			if c == nil || c.ID == nil || c.Attributes == nil || c.Attributes.Expires == nil {
				continue
			}
			if c.Attributes.Expires.Sub(now) < within {
				out = append(out, Expiring{Name: c.ID.Name(), Expires: *c.Attributes.Expires})
			}
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
