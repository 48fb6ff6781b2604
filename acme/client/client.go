// Package client provides a low-level ACME v2 client covering the subset of
// RFC 8555 needed to issue a certificate with dns-01 challenges.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	acmenet "github.com/cpu/vaultcert/net"
	"go.uber.org/zap"
)

// Client allows interaction with an ACME server on behalf of one Account.
//
// The Client's DirectoryURL is the URL of the ACME server's directory. The
// directory is fetched lazily on first use unless one was provided in the
// Config, e.g. from a previous run's saved state. See
// https://tools.ietf.org/html/rfc8555#section-7.1.1
//
// The Client's Account and Signer are used to authenticate requests with
// JSON Web Signatures (JWS). Both are nil until SetAccount or CreateAccount is
// called. All requests that read resources are made as POST-as-GET requests.
type Client struct {
	DirectoryURL string

	net *acmenet.ACMENet
	log *zap.Logger

	mu sync.Mutex
	// directory is an in-memory representation of the ACME server's directory
	// object.
	directory resources.Directory
	// nonce is the value of the last-seen Replay-Nonce header from the ACME
	// server's HTTP responses. It is consumed by the next signing operation.
	nonce   string
	account *resources.Account
	signer  *keys.Signer
}

// Config contains configuration options provided to New.
//
// The DirectoryURL field is mandatory. It must be a fully qualified URL with
// an http:// or https:// prefix.
//
// The Directory field optionally holds a previously fetched directory. When
// set the Client does not fetch the directory again.
type Config struct {
	DirectoryURL string
	Directory    resources.Directory
	Net          *acmenet.ACMENet
	Log          *zap.Logger
}

// normalize validates a Config.
func (conf *Config) normalize() error {
	conf.DirectoryURL = strings.TrimSpace(conf.DirectoryURL)
	if conf.DirectoryURL == "" {
		return fmt.Errorf("DirectoryURL must not be empty")
	}

	u, err := url.Parse(conf.DirectoryURL)
	if err != nil {
		return fmt.Errorf("DirectoryURL invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("DirectoryURL %q must be an http or https URL", conf.DirectoryURL)
	}

	if conf.Net == nil {
		return fmt.Errorf("Net must not be nil")
	}
	if conf.Log == nil {
		conf.Log = zap.NewNop()
	}
	return nil
}

// New creates a Client from the given Config.
func New(conf Config) (*Client, error) {
	if err := conf.normalize(); err != nil {
		return nil, err
	}
	return &Client{
		DirectoryURL: conf.DirectoryURL,
		directory:    conf.Directory,
		net:          conf.Net,
		log:          conf.Log,
	}, nil
}

// SetAccount makes the Client sign subsequent requests as the given existing
// account.
func (c *Client) SetAccount(acct *resources.Account, signer *keys.Signer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = acct
	c.signer = signer
}

// Account returns the active account, or nil.
func (c *Client) Account() *resources.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// Signer returns the active account's signer, or nil.
func (c *Client) Signer() *keys.Signer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signer
}

// ActiveAccountID returns the ID of the active account. If there is no
// account, or it has not yet been created with the ACME server, an empty
// string is returned.
func (c *Client) ActiveAccountID() string {
	acct := c.Account()
	if acct == nil {
		return ""
	}
	return acct.ID
}
