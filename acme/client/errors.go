package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cpu/vaultcert/acme"
	"github.com/cpu/vaultcert/acme/resources"
	acmenet "github.com/cpu/vaultcert/net"
)

// ProtocolError is returned when the ACME server rejects a request or replies
// with something the client can not use. Problem holds the server's problem
// document when there was one, including any subproblems.
type ProtocolError struct {
	// The operation that failed, e.g. "newOrder".
	Op string
	// The HTTP status of the response, or 0.
	StatusCode int
	Problem    resources.Problem
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "HTTP %d: ", e.StatusCode)
	}
	b.WriteString(e.Problem.String())
	for _, sub := range e.Problem.Subproblems {
		fmt.Fprintf(&b, "; %s", sub)
	}
	return b.String()
}

// Code returns the short problem type, e.g. "rejectedIdentifier".
func (e *ProtocolError) Code() string {
	return e.Problem.Code()
}

// IsBadNonce reports whether err is a badNonce problem from the server.
func IsBadNonce(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Problem.Type == acme.BAD_NONCE_PROBLEM
}

// newProtocolError builds a ProtocolError from an error response, decoding a
// problem document from the body when possible.
func newProtocolError(op string, resp *acmenet.NetResponse) *ProtocolError {
	pe := &ProtocolError{
		Op:         op,
		StatusCode: resp.Response.StatusCode,
	}
	var prob resources.Problem
	if err := json.Unmarshal(resp.RespBody, &prob); err == nil && prob.Type != "" {
		pe.Problem = prob
		return pe
	}
	pe.Problem = resources.Problem{
		Type:   "about:blank",
		Detail: fmt.Sprintf("unexpected response: %s", strings.TrimSpace(string(resp.RespBody))),
		Status: resp.Response.StatusCode,
	}
	return pe
}

// invalidJSON reports a successful response whose body could not be decoded.
func invalidJSON(op string, resp *acmenet.NetResponse, err error) *ProtocolError {
	return protocolErrorf(op, resp.Response.StatusCode, "server returned invalid JSON: %v", err)
}

// protocolErrorf builds a ProtocolError for a response that was well formed
// HTTP but not what the protocol requires.
func protocolErrorf(op string, status int, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Op:         op,
		StatusCode: status,
		Problem: resources.Problem{
			Type:   "about:blank",
			Detail: fmt.Sprintf(format, args...),
		},
	}
}
