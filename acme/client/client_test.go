package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/internal/acmetest"
	acmenet "github.com/cpu/vaultcert/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *acmetest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		DirectoryURL: srv.DirectoryURL(),
		Net:          acmenet.NewWithClient(srv.Client(), nil),
	})
	require.NoError(t, err)
	return c
}

func registeredClient(t *testing.T, srv *acmetest.Server, alg keys.Algorithm) *Client {
	t.Helper()
	c := newTestClient(t, srv)
	_, signer, err := keys.NewAccountKey(alg)
	require.NoError(t, err)
	require.NoError(t, c.CreateAccount(context.Background(), resources.NewAccount("admin@example.com"), signer))
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	net := acmenet.NewWithClient(nil, nil)
	testCases := []struct {
		name string
		conf Config
	}{
		{"empty url", Config{Net: net}},
		{"bad scheme", Config{DirectoryURL: "ftp://example.com/dir", Net: net}},
		{"no net", Config{DirectoryURL: "https://example.com/dir"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.conf)
			assert.Error(t, err)
		})
	}
}

func TestDirectoryIsFetchedOnce(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()

	c := newTestClient(t, srv)
	dir, err := c.Directory(context.Background())
	require.NoError(t, err)
	newOrder, ok := dir.Endpoint(acme.NEW_ORDER_ENDPOINT)
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/new-order", newOrder)
	assert.Equal(t, srv.URL+"/tos", dir.TermsOfService())
}

func TestStoredDirectoryIsUsed(t *testing.T) {
	stored := resources.Directory{acme.NEW_ORDER_ENDPOINT: "https://stored.example/new-order"}
	c, err := New(Config{
		DirectoryURL: "https://unreachable.invalid/dir",
		Directory:    stored,
		Net:          acmenet.NewWithClient(nil, nil),
	})
	require.NoError(t, err)

	endpoint, err := c.GetEndpointURL(context.Background(), acme.NEW_ORDER_ENDPOINT)
	require.NoError(t, err)
	assert.Equal(t, "https://stored.example/new-order", endpoint)

	_, err = c.GetEndpointURL(context.Background(), "keyChange")
	assert.Error(t, err)
}

func TestCreateAccount(t *testing.T) {
	for _, alg := range []keys.Algorithm{keys.ES256, keys.ES384, keys.RS256} {
		t.Run(alg.String(), func(t *testing.T) {
			srv := acmetest.New(acmetest.Config{})
			defer srv.Close()

			c := registeredClient(t, srv, alg)
			acct := c.Account()
			require.NotNil(t, acct)
			assert.Contains(t, acct.ID, srv.URL+"/acct/")
			assert.Equal(t, []string{"mailto:admin@example.com"}, acct.Contact)
			assert.Equal(t, acme.STATUS_VALID, acct.Status)

			newAccount, _ := srv.Counts()
			assert.Equal(t, 1, newAccount)
		})
	}
}

func TestCreateAccountRejectsExisting(t *testing.T) {
	c := &Client{}
	err := c.CreateAccount(context.Background(), &resources.Account{ID: "https://x/acct/1"}, nil)
	assert.Error(t, err)
}

func TestBadNonceIsRetriedOnce(t *testing.T) {
	srv := acmetest.New(acmetest.Config{BadNonces: 1})
	defer srv.Close()

	c := registeredClient(t, srv, keys.ES256)
	assert.NotEmpty(t, c.ActiveAccountID())
}

func TestBadNonceTwiceFails(t *testing.T) {
	srv := acmetest.New(acmetest.Config{BadNonces: 2})
	defer srv.Close()

	c := newTestClient(t, srv)
	_, signer, err := keys.NewAccountKey(keys.ES256)
	require.NoError(t, err)
	err = c.CreateAccount(context.Background(), resources.NewAccount(), signer)
	require.Error(t, err)
	assert.True(t, IsBadNonce(err))
	assert.Nil(t, c.Account())
}

func TestCreateOrderRequiresAccount(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateOrder(context.Background(), []string{"a.example.com"})
	assert.Error(t, err)
}

func TestOrderProblemIsProtocolError(t *testing.T) {
	srv := acmetest.New(acmetest.Config{
		OrderProblem: &resources.Problem{
			Type:   "urn:ietf:params:acme:error:rejectedIdentifier",
			Detail: "policy forbids issuing for names",
			Status: 400,
			Subproblems: []resources.Subproblem{
				{
					Type:       "urn:ietf:params:acme:error:rejectedIdentifier",
					Detail:     "forbidden",
					Identifier: &resources.Identifier{Type: "dns", Value: "bad.example.com"},
				},
			},
		},
	})
	defer srv.Close()

	c := registeredClient(t, srv, keys.ES256)
	_, err := c.CreateOrder(context.Background(), []string{"bad.example.com"})
	require.Error(t, err)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "newOrder", pe.Op)
	assert.Equal(t, 400, pe.StatusCode)
	assert.Equal(t, "rejectedIdentifier", pe.Code())
	require.Len(t, pe.Problem.Subproblems, 1)
	assert.Contains(t, err.Error(), "bad.example.com")
}

// garbledTransport replaces the body of every response for a path under
// prefix with invalid JSON.
type garbledTransport struct {
	base   http.RoundTripper
	prefix string
}

func (g garbledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.base.RoundTrip(req)
	if err != nil || !strings.HasPrefix(req.URL.Path, g.prefix) {
		return resp, err
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(strings.NewReader("{not json"))
	resp.ContentLength = -1
	return resp, nil
}

func TestMalformedResponseIsProtocolError(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		op     string
		status int
		call   func(ctx context.Context, c *Client, order *resources.Order) error
	}{
		{
			name:   "order",
			prefix: "/order/",
			op:     "getOrder",
			status: http.StatusOK,
			call: func(ctx context.Context, c *Client, order *resources.Order) error {
				_, err := c.GetOrder(ctx, order.ID)
				return err
			},
		},
		{
			name:   "authorization",
			prefix: "/authz/",
			op:     "getAuthz",
			status: http.StatusOK,
			call: func(ctx context.Context, c *Client, order *resources.Order) error {
				_, err := c.GetAuthorization(ctx, order.Authorizations[0])
				return err
			},
		},
		{
			name:   "new order",
			prefix: "/new-order",
			op:     "newOrder",
			status: http.StatusCreated,
			call: func(ctx context.Context, c *Client, _ *resources.Order) error {
				_, err := c.CreateOrder(ctx, []string{"b.example.com"})
				return err
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := acmetest.New(acmetest.Config{})
			defer srv.Close()
			ctx := context.Background()

			order, err := registeredClient(t, srv, keys.ES256).CreateOrder(ctx, []string{"a.example.com"})
			require.NoError(t, err)

			httpClient := *srv.Client()
			httpClient.Transport = garbledTransport{base: httpClient.Transport, prefix: tc.prefix}
			c, err := New(Config{
				DirectoryURL: srv.DirectoryURL(),
				Net:          acmenet.NewWithClient(&httpClient, nil),
			})
			require.NoError(t, err)
			_, signer, err := keys.NewAccountKey(keys.ES256)
			require.NoError(t, err)
			require.NoError(t, c.CreateAccount(ctx, resources.NewAccount("admin@example.com"), signer))

			err = tc.call(ctx, c, order)
			require.Error(t, err)
			var pe *ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.op, pe.Op)
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Contains(t, err.Error(), "invalid JSON")
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()
	ctx := context.Background()

	c := registeredClient(t, srv, keys.ES256)
	order, err := c.CreateOrder(ctx, []string{"a.example.com", "b.example.com"})
	require.NoError(t, err)
	assert.Equal(t, acme.STATUS_PENDING, order.Status)
	require.Len(t, order.Authorizations, 2)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, order.Names())

	for _, authzURL := range order.Authorizations {
		authz, err := c.GetAuthorization(ctx, authzURL)
		require.NoError(t, err)
		assert.Equal(t, authzURL, authz.ID)

		chall, err := authz.Challenge(acme.DNS01_CHALLENGE)
		require.NoError(t, err)

		answered, err := c.AnswerChallenge(ctx, chall.URL)
		require.NoError(t, err)
		assert.Equal(t, acme.STATUS_VALID, answered.Status)
	}

	order, err = c.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.STATUS_READY, order.Status)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, _, pemCSR, err := CSR("", order.Names(), key)
	require.NoError(t, err)
	assert.Contains(t, string(pemCSR), "CERTIFICATE REQUEST")

	order, err = c.FinalizeOrder(ctx, order, der)
	require.NoError(t, err)
	assert.Equal(t, acme.STATUS_PROCESSING, order.Status)

	order, err = c.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.STATUS_VALID, order.Status)
	require.NotEmpty(t, order.Certificate)

	chain, err := c.GetCertificate(ctx, order.Certificate)
	require.NoError(t, err)
	block, _ := pem.Decode(chain)
	require.NotNil(t, block)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", leaf.Subject.CommonName)
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, leaf.DNSNames)
}

func TestFinalizeBeforeReady(t *testing.T) {
	srv := acmetest.New(acmetest.Config{})
	defer srv.Close()
	ctx := context.Background()

	c := registeredClient(t, srv, keys.ES256)
	order, err := c.CreateOrder(ctx, []string{"a.example.com"})
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, _, _, err := CSR("", order.Names(), key)
	require.NoError(t, err)

	_, err = c.FinalizeOrder(ctx, order, der)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "orderNotReady", pe.Code())
}

func TestSignValidatesOptions(t *testing.T) {
	_, signer, err := keys.NewAccountKey(keys.ES256)
	require.NoError(t, err)
	c := &Client{}

	_, err = c.Sign("https://example.com", nil, SigningOptions{})
	assert.Error(t, err, "no signer")

	_, err = c.Sign("https://example.com", nil, SigningOptions{Signer: signer, NonceSource: nonceSource{client: c}})
	assert.Error(t, err, "no key id and no embedded key")

	_, err = c.Sign("https://example.com", nil, SigningOptions{Signer: signer, EmbedKey: true, KeyID: "kid"})
	assert.Error(t, err, "both key id and embedded key")
}

func TestCSRRequiresNames(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	_, _, _, err = CSR("", nil, key)
	assert.Error(t, err)
}
