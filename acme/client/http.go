package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cpu/vaultcert/net"
	"go.uber.org/zap"
)

// postOptions customize a signed POST.
type postOptions struct {
	embedKey bool
	accept   string
}

// post signs payload for url and POSTs it. The response's Replay-Nonce is
// saved for the next request. A badNonce rejection is retried once with a
// fresh nonce. Any response status of 400 or above is returned as
// a *ProtocolError.
func (c *Client) post(ctx context.Context, op, url string, payload []byte, opts postOptions) (*net.NetResponse, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.Sign(url, payload, SigningOptions{
			EmbedKey:    opts.embedKey,
			NonceSource: nonceSource{ctx: ctx, client: c},
		})
		if err != nil {
			return nil, fmt.Errorf("%s: signing request: %w", op, err)
		}

		req, err := c.net.PostRequest(ctx, url, body)
		if err != nil {
			return nil, err
		}
		if opts.accept != "" {
			req.Header.Set("Accept", opts.accept)
		}

		resp, err := c.net.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.saveNonce(resp)

		if resp.Response.StatusCode < http.StatusBadRequest {
			return resp, nil
		}

		lastErr = newProtocolError(op, resp)
		if !IsBadNonce(lastErr) {
			return nil, lastErr
		}
		c.log.Debug("retrying request after badNonce",
			zap.String("op", op), zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

// postAsGet fetches url with a POST-as-GET request.
//
// See https://tools.ietf.org/html/rfc8555#section-6.3
func (c *Client) postAsGet(ctx context.Context, op, url string) (*net.NetResponse, error) {
	return c.post(ctx, op, url, []byte{}, postOptions{})
}
