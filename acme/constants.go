// Package acme provides ACME protocol constants. See RFC 8555.
package acme

const (
	// Directory constants
	// See https://tools.ietf.org/html/rfc8555#section-9.7.5

	// The ACME directory key for the newNonce endpoint
	NEW_NONCE_ENDPOINT = "newNonce"
	// The ACME directory key for the newAccount endpoint.
	NEW_ACCOUNT_ENDPOINT = "newAccount"
	// The ACME directory key for the newOrder endpoint.
	NEW_ORDER_ENDPOINT = "newOrder"

	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://tools.ietf.org/html/rfc8555#section-9.3
	REPLAY_NONCE_HEADER = "Replay-Nonce"

	// The only challenge type this client solves.
	// See https://tools.ietf.org/html/rfc8555#section-8.4
	DNS01_CHALLENGE = "dns-01"

	// The label prepended to an identifier to form the DNS-01 record name.
	DNS01_LABEL = "_acme-challenge"

	// Problem type URN for a rejected nonce.
	// See https://tools.ietf.org/html/rfc8555#section-6.7
	BAD_NONCE_PROBLEM = "urn:ietf:params:acme:error:badNonce"
)

// Resource status values.
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
const (
	STATUS_PENDING     = "pending"
	STATUS_READY       = "ready"
	STATUS_PROCESSING  = "processing"
	STATUS_VALID       = "valid"
	STATUS_INVALID     = "invalid"
	STATUS_DEACTIVATED = "deactivated"
)
