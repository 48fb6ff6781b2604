package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cpu/vaultcert/acme"
	acmenet "github.com/cpu/vaultcert/net"
)

// nonceSource satisfies the JWS "NonceSource" interface for a single signing
// operation. It hands out the nonce saved from the last server response, or
// fetches a fresh one from the newNonce endpoint when none is saved.
type nonceSource struct {
	ctx    context.Context
	client *Client
}

func (n nonceSource) Nonce() (string, error) {
	n.client.mu.Lock()
	nonce := n.client.nonce
	n.client.nonce = ""
	n.client.mu.Unlock()
	if nonce != "" {
		return nonce, nil
	}
	return n.client.fetchNonce(n.ctx)
}

// fetchNonce gets a new nonce from the ACME server's newNonce endpoint.
//
// See https://tools.ietf.org/html/rfc8555#section-7.2
func (c *Client) fetchNonce(ctx context.Context) (string, error) {
	nonceURL, err := c.GetEndpointURL(ctx, acme.NEW_NONCE_ENDPOINT)
	if err != nil {
		return "", err
	}

	resp, err := c.net.HeadURL(ctx, nonceURL)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("%q returned HTTP status %d, expected %d",
			acme.NEW_NONCE_ENDPOINT, resp.StatusCode, http.StatusOK)
	}

	nonce := resp.Header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return "", fmt.Errorf("%q returned no %q header value",
			acme.NEW_NONCE_ENDPOINT, acme.REPLAY_NONCE_HEADER)
	}
	return nonce, nil
}

// saveNonce stores the Replay-Nonce of a response for the next request.
func (c *Client) saveNonce(resp *acmenet.NetResponse) {
	nonce := resp.Response.Header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return
	}
	c.mu.Lock()
	c.nonce = nonce
	c.mu.Unlock()
}
