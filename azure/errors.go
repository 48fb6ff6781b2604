package azure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// StabilizeError wraps an error returned by an SDK call that reached the
// network. The SDK embeds whole HTTP exchanges in its messages; the wrapper
// renders only the request line, status and error code.
func StabilizeError(err error) error {
	if err == nil {
		return nil
	}
	return NormalizedError{Cause: err}
}

// IsNotFound reports whether err is an Azure response with status 404.
func IsNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

type NormalizedError struct {
	Cause error
}

func (e NormalizedError) Unwrap() error {
	return e.Cause
}

func (e NormalizedError) Error() string {
	var (
		authErr *azidentity.AuthenticationFailedError
		respErr *azcore.ResponseError
	)

	switch {
	case errors.As(e.Cause, &authErr):
		msg := new(strings.Builder)
		fmt.Fprintln(msg, "authentication failed:")
		if authErr.RawResponse != nil {
			if req := authErr.RawResponse.Request; req != nil {
				fmt.Fprintf(msg, "%s %s://%s%s\n", req.Method, req.URL.Scheme, req.URL.Host, req.URL.Path)
			}
			fmt.Fprintf(msg, "RESPONSE %s\n", authErr.RawResponse.Status)
		}
		fmt.Fprint(msg, "see logs for more information")
		return msg.String()
	case errors.As(e.Cause, &respErr):
		msg := new(strings.Builder)
		fmt.Fprintln(msg, "request error:")
		if respErr.RawResponse != nil {
			if req := respErr.RawResponse.Request; req != nil {
				fmt.Fprintf(msg, "%s %s://%s%s\n", req.Method, req.URL.Scheme, req.URL.Host, req.URL.Path)
			}
			fmt.Fprintf(msg, "RESPONSE %s\n", respErr.RawResponse.Status)
		}
		if respErr.ErrorCode != "" {
			fmt.Fprintf(msg, "ERROR CODE: %s\n", respErr.ErrorCode)
		} else {
			fmt.Fprintln(msg, "ERROR CODE UNAVAILABLE")
		}
		fmt.Fprint(msg, "see logs for more information")
		return msg.String()
	default:
		return e.Cause.Error()
	}
}
