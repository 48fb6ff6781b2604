package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/keys"
	"github.com/cpu/vaultcert/acme/resources"
	"go.uber.org/zap"
)

// CreateAccount registers the given Account with the ACME server using
// signer as the account key. On success the Account's ID is populated from the
// response's Location header and the Account becomes the Client's active
// account.
//
// Important: This function always agrees to the server's terms of service
// (it sends "termsOfServiceAgreed": true).
//
// For more information on account creation see
// https://tools.ietf.org/html/rfc8555#section-7.3
func (c *Client) CreateAccount(ctx context.Context, acct *resources.Account, signer *keys.Signer) error {
	const op = "newAccount"
	if acct.ID != "" {
		return fmt.Errorf("%s: account already exists under ID %q", op, acct.ID)
	}

	newAcctReq := struct {
		Contact   []string `json:"contact,omitempty"`
		ToSAgreed bool     `json:"termsOfServiceAgreed"`
	}{
		Contact:   acct.Contact,
		ToSAgreed: true,
	}

	reqBody, err := json.Marshal(&newAcctReq)
	if err != nil {
		return err
	}

	newAcctURL, err := c.GetEndpointURL(ctx, acme.NEW_ACCOUNT_ENDPOINT)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Sign with the new key before it becomes the active signer.
	c.SetAccount(nil, signer)

	c.log.Info("creating account",
		zap.Strings("contact", acct.Contact), zap.String("url", newAcctURL))
	resp, err := c.post(ctx, op, newAcctURL, reqBody, postOptions{embedKey: true})
	if err != nil {
		c.SetAccount(nil, nil)
		return err
	}

	status := resp.Response.StatusCode
	if status != http.StatusCreated && status != http.StatusOK {
		c.SetAccount(nil, nil)
		return protocolErrorf(op, status, "server returned status code %d, expected %d",
			status, http.StatusCreated)
	}

	locHeader := resp.Response.Header.Get("Location")
	if locHeader == "" {
		c.SetAccount(nil, nil)
		return protocolErrorf(op, status, "server returned response with no Location header")
	}

	var created resources.Account
	if err := json.Unmarshal(resp.RespBody, &created); err == nil {
		acct.Status = created.Status
		acct.Orders = created.Orders
	}

	// Store the Location header as the Account's ID
	acct.ID = locHeader
	c.SetAccount(acct, signer)
	c.log.Info("created account", zap.String("account", acct.ID))
	return nil
}

// CreateOrder creates an Order for the given DNS names with the ACME server.
// The returned Order's ID is the value of the server's Location header.
//
// For more information on Order creation see "Applying for Certificate
// Issuance" in RFC 8555:
// https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) CreateOrder(ctx context.Context, names []string) (*resources.Order, error) {
	const op = "newOrder"
	if c.ActiveAccountID() == "" {
		return nil, fmt.Errorf("%s: active account is nil or has not been created", op)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no names specified", op)
	}

	req := struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}{}
	for _, name := range names {
		req.Identifiers = append(req.Identifiers, resources.DNSIdentifier(name))
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	newOrderURL, err := c.GetEndpointURL(ctx, acme.NEW_ORDER_ENDPOINT)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.post(ctx, op, newOrderURL, reqBody, postOptions{})
	if err != nil {
		return nil, err
	}

	status := resp.Response.StatusCode
	if status != http.StatusCreated {
		return nil, protocolErrorf(op, status, "server returned status code %d, expected %d",
			status, http.StatusCreated)
	}

	locHeader := resp.Response.Header.Get("Location")
	if locHeader == "" {
		return nil, protocolErrorf(op, status, "server returned response with no Location header")
	}

	order := &resources.Order{}
	if err := json.Unmarshal(resp.RespBody, order); err != nil {
		return nil, invalidJSON(op, resp, err)
	}
	order.ID = locHeader
	c.log.Info("created order", zap.String("order", order.ID), zap.Strings("names", names))
	return order, nil
}

// GetOrder fetches the current state of the Order at orderURL.
func (c *Client) GetOrder(ctx context.Context, orderURL string) (*resources.Order, error) {
	const op = "getOrder"
	if orderURL == "" {
		return nil, fmt.Errorf("%s: order must have an ID", op)
	}
	resp, err := c.postAsGet(ctx, op, orderURL)
	if err != nil {
		return nil, err
	}
	order := &resources.Order{}
	if err := json.Unmarshal(resp.RespBody, order); err != nil {
		return nil, invalidJSON(op, resp, err)
	}
	order.ID = orderURL
	return order, nil
}

// GetAuthorization fetches the Authorization at authzURL.
func (c *Client) GetAuthorization(ctx context.Context, authzURL string) (*resources.Authorization, error) {
	const op = "getAuthz"
	if authzURL == "" {
		return nil, fmt.Errorf("%s: authz must have an ID", op)
	}
	resp, err := c.postAsGet(ctx, op, authzURL)
	if err != nil {
		return nil, err
	}
	authz := &resources.Authorization{}
	if err := json.Unmarshal(resp.RespBody, authz); err != nil {
		return nil, invalidJSON(op, resp, err)
	}
	authz.ID = authzURL
	return authz, nil
}

// AnswerChallenge tells the server the challenge at challURL is ready to be
// validated by POSTing an empty JSON object to it.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5.1
func (c *Client) AnswerChallenge(ctx context.Context, challURL string) (*resources.Challenge, error) {
	const op = "answerChallenge"
	if challURL == "" {
		return nil, fmt.Errorf("%s: challenge must have a URL", op)
	}
	resp, err := c.post(ctx, op, challURL, []byte("{}"), postOptions{})
	if err != nil {
		return nil, err
	}
	chall := &resources.Challenge{}
	if err := json.Unmarshal(resp.RespBody, chall); err != nil {
		return nil, invalidJSON(op, resp, err)
	}
	if chall.URL == "" {
		chall.URL = challURL
	}
	c.log.Debug("answered challenge",
		zap.String("challenge", challURL), zap.String("status", chall.Status))
	return chall, nil
}

// FinalizeOrder submits the DER encoded CSR to the Order's finalize URL and
// returns the updated Order.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) FinalizeOrder(ctx context.Context, order *resources.Order, csr []byte) (*resources.Order, error) {
	const op = "finalize"
	if order == nil || order.Finalize == "" {
		return nil, fmt.Errorf("%s: order has no finalize URL", op)
	}
	if len(csr) == 0 {
		return nil, fmt.Errorf("%s: empty CSR", op)
	}

	reqBody, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{
		CSR: base64.RawURLEncoding.EncodeToString(csr),
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, op, order.Finalize, reqBody, postOptions{})
	if err != nil {
		return nil, err
	}

	updated := &resources.Order{}
	if err := json.Unmarshal(resp.RespBody, updated); err != nil {
		return nil, invalidJSON(op, resp, err)
	}
	updated.ID = order.ID
	if loc := resp.Response.Header.Get("Location"); loc != "" {
		updated.ID = loc
	}
	c.log.Info("finalized order",
		zap.String("order", updated.ID), zap.String("status", updated.Status))
	return updated, nil
}

// GetCertificate downloads the PEM certificate chain at certURL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4.2
func (c *Client) GetCertificate(ctx context.Context, certURL string) ([]byte, error) {
	const op = "getCert"
	if certURL == "" {
		return nil, fmt.Errorf("%s: empty certificate URL", op)
	}
	resp, err := c.post(ctx, op, certURL, []byte{}, postOptions{
		accept: "application/pem-certificate-chain",
	})
	if err != nil {
		return nil, err
	}
	if len(resp.RespBody) == 0 {
		return nil, protocolErrorf(op, resp.Response.StatusCode, "server returned an empty certificate chain")
	}
	return resp.RespBody, nil
}
