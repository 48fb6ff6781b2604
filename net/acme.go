// Package net provides common HTTP utilities for talking to an ACME server.
package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
)

const (
	version       = "0.1.0"
	userAgentBase = "vaultcert"
	locale        = "en-us"

	defaultTimeout = 30 * time.Second
)

// Config holds options for New.
type Config struct {
	// An optional file path to one or more PEM encoded CA certificates to be
	// used as trust roots for HTTPS requests. If empty the system roots are
	// used.
	CABundle string
	// Timeout for a single request. Defaults to 30s.
	Timeout time.Duration
	// If true, full request and response dumps are logged at debug level.
	Dump bool
}

type ACMENet struct {
	httpClient *http.Client
	log        *zap.Logger
	dump       bool
}

func New(conf Config, log *zap.Logger) (*ACMENet, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if conf.Timeout == 0 {
		conf.Timeout = defaultTimeout
	}

	var caBundle *x509.CertPool
	if conf.CABundle != "" {
		pemBundle, err := os.ReadFile(conf.CABundle)
		if err != nil {
			return nil, err
		}

		caBundle = x509.NewCertPool()
		if !caBundle.AppendCertsFromPEM(pemBundle) {
			return nil, fmt.Errorf("no certificates found in CA bundle %q", conf.CABundle)
		}
	}

	return &ACMENet{
		httpClient: &http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					RootCAs: caBundle,
				},
			},
		},
		log:  log,
		dump: conf.Dump,
	}, nil
}

// NewWithClient returns an ACMENet using the provided http.Client, e.g. one
// from an httptest.Server.
func NewWithClient(client *http.Client, log *zap.Logger) *ACMENet {
	if log == nil {
		log = zap.NewNop()
	}
	return &ACMENet{httpClient: client, log: log}
}

// NetResponse holds the results from calling Do with an HTTP Request.
type NetResponse struct {
	// The HTTP Response object from making the request. Its body has already
	// been read into RespBody.
	Response *http.Response
	// The response body.
	RespBody []byte
}

// Do performs an HTTP request, returning a pointer to a NetResponse instance or
// an error. User-Agent and Accept-Language headers are automatically added to
// the request. The body of the HTTP Response is read into the NetResponse and
// can not be read again.
func (c *ACMENet) Do(req *http.Request) (*NetResponse, error) {
	ua := fmt.Sprintf("%s %s (%s; %s)",
		userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", locale)

	if c.dump {
		if reqDump, err := httputil.DumpRequestOut(req, true); err == nil {
			c.log.Debug("acme request", zap.ByteString("dump", reqDump))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if c.dump {
		if respDump, err := httputil.DumpResponse(resp, true); err == nil {
			c.log.Debug("acme response", zap.ByteString("dump", respDump))
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &NetResponse{
		Response: resp,
		RespBody: respBody,
	}, nil
}

// HeadURL performs a HEAD request and discards the body.
func (c *ACMENet) HeadURL(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Response, nil
}

// Convenience function to construct a POST request to the given URL with the
// given JWS body. Returns an HTTP request or a non-nil error.
func (c *ACMENet) PostRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	return req, nil
}

// Convenience function to POST the given URL with the given body. This is
// a wrapper combining PostRequest and Do.
func (c *ACMENet) PostURL(ctx context.Context, url string, body []byte) (*NetResponse, error) {
	req, err := c.PostRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	return c.Do(req)
}

// Convenience function to GET the given URL. This is a wrapper combining
// http.NewRequestWithContext and Do.
func (c *ACMENet) GetURL(ctx context.Context, url string) (*NetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
