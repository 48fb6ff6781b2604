package vault

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVaultURL = "https://fake-vault.vault.azure.net/"

func newTestVault(t *testing.T, srv *fake.Server) *Vault {
	t.Helper()
	v, err := New(testVaultURL, &azfake.TokenCredential{}, &azcertificates.ClientOptions{
		ClientOptions: azcore.ClientOptions{Transport: fake.NewServerTransport(srv)},
	}, nil)
	require.NoError(t, err)
	return v
}

func testRequest() Request {
	return Request{
		Subject: "CN=example.com",
		Names:   []string{"example.com", "www.example.com"},
		Tags:    map[string]string{"cert-type": "Let's Encrypt"},
	}
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("", &azfake.TokenCredential{}, nil, nil)
	assert.Error(t, err)
}

func TestCreatePending(t *testing.T) {
	var gotName string
	var gotParams azcertificates.CreateCertificateParameters
	v := newTestVault(t, &fake.Server{
		CreateCertificate: func(ctx context.Context, name string, params azcertificates.CreateCertificateParameters, options *azcertificates.CreateCertificateOptions) (resp azfake.Responder[azcertificates.CreateCertificateResponse], errResp azfake.ErrorResponder) {
			gotName = name
			gotParams = params
			resp.SetResponse(http.StatusAccepted, azcertificates.CreateCertificateResponse{
				CertificateOperation: azcertificates.CertificateOperation{
					CSR:    []byte("csr-der"),
					Status: to.Ptr("inProgress"),
				},
			}, nil)
			return
		},
	})

	csr, err := v.CreatePending(context.Background(), "le-cert", testRequest())
	require.NoError(t, err)
	assert.Equal(t, []byte("csr-der"), csr)
	assert.Equal(t, "le-cert", gotName)

	p := gotParams.CertificatePolicy
	require.NotNil(t, p)
	assert.Equal(t, IssuerUnknown, *p.IssuerParameters.Name)
	assert.Equal(t, azcertificates.KeyTypeEC, *p.KeyProperties.KeyType)
	assert.Equal(t, azcertificates.CurveNameP256, *p.KeyProperties.Curve)
	assert.Equal(t, "CN=example.com", *p.X509CertificateProperties.Subject)
	require.Len(t, p.X509CertificateProperties.SubjectAlternativeNames.DNSNames, 2)
	assert.Equal(t, "www.example.com", *p.X509CertificateProperties.SubjectAlternativeNames.DNSNames[1])
	assert.Nil(t, p.X509CertificateProperties.ValidityInMonths)
	assert.Equal(t, "Let's Encrypt", *gotParams.Tags["cert-type"])
}

func TestCreatePendingWithoutCSR(t *testing.T) {
	v := newTestVault(t, &fake.Server{
		CreateCertificate: func(ctx context.Context, name string, params azcertificates.CreateCertificateParameters, options *azcertificates.CreateCertificateOptions) (resp azfake.Responder[azcertificates.CreateCertificateResponse], errResp azfake.ErrorResponder) {
			resp.SetResponse(http.StatusAccepted, azcertificates.CreateCertificateResponse{}, nil)
			return
		},
	})
	_, err := v.CreatePending(context.Background(), "le-cert", testRequest())
	assert.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	v := newTestVault(t, &fake.Server{})
	_, err := v.CreatePending(context.Background(), "", testRequest())
	assert.Error(t, err)
	err = v.CreateSelfSigned(context.Background(), "self", Request{})
	assert.Error(t, err)
}

func TestCreateSelfSigned(t *testing.T) {
	var issuer string
	v := newTestVault(t, &fake.Server{
		CreateCertificate: func(ctx context.Context, name string, params azcertificates.CreateCertificateParameters, options *azcertificates.CreateCertificateOptions) (resp azfake.Responder[azcertificates.CreateCertificateResponse], errResp azfake.ErrorResponder) {
			issuer = *params.CertificatePolicy.IssuerParameters.Name
			resp.SetResponse(http.StatusAccepted, azcertificates.CreateCertificateResponse{}, nil)
			return
		},
	})
	req := testRequest()
	req.ValidityInMonths = 3
	require.NoError(t, v.CreateSelfSigned(context.Background(), "self", req))
	assert.Equal(t, IssuerSelf, issuer)
}

func TestCreateError(t *testing.T) {
	v := newTestVault(t, &fake.Server{
		CreateCertificate: func(ctx context.Context, name string, params azcertificates.CreateCertificateParameters, options *azcertificates.CreateCertificateOptions) (resp azfake.Responder[azcertificates.CreateCertificateResponse], errResp azfake.ErrorResponder) {
			errResp.SetResponseError(http.StatusConflict, "Conflict")
			return
		},
	})
	_, err := v.CreatePending(context.Background(), "le-cert", testRequest())
	require.Error(t, err)

	var vaultErr *Error
	require.True(t, errors.As(err, &vaultErr))
	assert.Equal(t, "Conflict", vaultErr.Code)
	assert.Equal(t, http.StatusConflict, vaultErr.StatusCode)

	var respErr *azcore.ResponseError
	assert.True(t, errors.As(err, &respErr))
}

func selfSigned(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestMerge(t *testing.T) {
	var got [][]byte
	v := newTestVault(t, &fake.Server{
		MergeCertificate: func(ctx context.Context, name string, params azcertificates.MergeCertificateParameters, options *azcertificates.MergeCertificateOptions) (resp azfake.Responder[azcertificates.MergeCertificateResponse], errResp azfake.ErrorResponder) {
			got = params.X509Certificates
			resp.SetResponse(http.StatusCreated, azcertificates.MergeCertificateResponse{}, nil)
			return
		},
	})
	leaf, ca := selfSigned(t, "example.com"), selfSigned(t, "ca")

	require.NoError(t, v.Merge(context.Background(), "le-cert", []*x509.Certificate{leaf, ca}))
	require.Len(t, got, 2)
	assert.Equal(t, leaf.Raw, got[0])
	assert.Equal(t, ca.Raw, got[1])

	assert.Error(t, v.Merge(context.Background(), "le-cert", nil))
}

func TestListExpiring(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	soon := now.Add(10 * 24 * time.Hour)
	later := now.Add(90 * 24 * time.Hour)
	v := newTestVault(t, &fake.Server{
		NewListCertificatePropertiesPager: func(options *azcertificates.ListCertificatePropertiesOptions) (resp azfake.PagerResponder[azcertificates.ListCertificatePropertiesResponse]) {
			resp.AddPage(http.StatusOK, azcertificates.ListCertificatePropertiesResponse{
				CertificatePropertiesListResult: azcertificates.CertificatePropertiesListResult{
					Value: []*azcertificates.CertificateProperties{
						{
							ID:         to.Ptr(azcertificates.ID(testVaultURL + "certificates/soon/v1")),
							Attributes: &azcertificates.CertificateAttributes{Expires: &soon},
						},
						{
							ID:         to.Ptr(azcertificates.ID(testVaultURL + "certificates/later/v1")),
							Attributes: &azcertificates.CertificateAttributes{Expires: &later},
						},
						{ID: to.Ptr(azcertificates.ID(testVaultURL + "certificates/no-attributes/v1"))},
					},
				},
			}, nil)
			return
		},
	})

	expiring, err := v.ListExpiring(context.Background(), now, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "soon", expiring[0].Name)
	assert.True(t, soon.Equal(expiring[0].Expires))
}

func TestNewErrorReadsInnerError(t *testing.T) {
	body := `{"error":{"code":"BadParameter","message":"Policy is invalid","innererror":{"code":"InvalidCurve","message":"P-999 is not a curve"}}}`
	respErr := &azcore.ResponseError{
		ErrorCode:  "BadParameter",
		StatusCode: http.StatusBadRequest,
		RawResponse: &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(body)),
		},
	}
	err := newError(respErr)

	var vaultErr *Error
	require.True(t, errors.As(err, &vaultErr))
	assert.Equal(t, "InvalidCurve", vaultErr.InnerCode)
	assert.Equal(t, "key vault error (BadParameter): Policy is invalid, inner error (InvalidCurve): P-999 is not a curve", err.Error())

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, plain, newError(plain))
}

func TestFromErrorInfo(t *testing.T) {
	var info azcertificates.ErrorInfo
	require.NoError(t, json.Unmarshal([]byte(`{"code":"Failed","message":"CA rejected the request","innererror":{"code":"Inner","message":"details"}}`), &info))

	err := fromErrorInfo(&info)
	assert.Equal(t, "Failed", err.Code)
	assert.Equal(t, "CA rejected the request", err.Message)
	assert.Equal(t, "Inner", err.InnerCode)
	assert.Equal(t, "details", err.InnerMessage)
}
