package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates"
)

// Error is a Key Vault error with its optional inner error.
type Error struct {
	StatusCode   int
	Code         string
	Message      string
	InnerCode    string
	InnerMessage string

	cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("key vault error (%s): %s", e.Code, e.Message)
	if e.InnerCode != "" || e.InnerMessage != "" {
		msg += fmt.Sprintf(", inner error (%s): %s", e.InnerCode, e.InnerMessage)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

type errorDetail struct {
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	InnerError *errorDetail `json:"innererror"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func (e *Error) fill(d errorDetail) {
	if d.Code != "" {
		e.Code = d.Code
	}
	e.Message = d.Message
	if d.InnerError != nil {
		e.InnerCode = d.InnerError.Code
		e.InnerMessage = d.InnerError.Message
	}
}

// newError converts an SDK response error into an *Error. Other errors are
// returned unchanged.
func newError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	out := &Error{
		StatusCode: respErr.StatusCode,
		Code:       respErr.ErrorCode,
		cause:      err,
	}
	if respErr.RawResponse != nil {
		payload, perr := runtime.Payload(respErr.RawResponse)
		var body errorBody
		if perr == nil && json.Unmarshal(payload, &body) == nil {
			out.fill(body.Error)
		}
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("request failed with status %d", respErr.StatusCode)
	}
	return out
}

// fromErrorInfo converts the error of a failed certificate operation. The
// SDK keeps only the code; the message is recovered from the raw JSON.
func fromErrorInfo(info *azcertificates.ErrorInfo) *Error {
	out := &Error{Code: info.Code}
	var d errorDetail
	if json.Unmarshal([]byte(info.Error()), &d) == nil {
		out.fill(d)
	}
	if out.Message == "" {
		out.Message = "certificate operation failed"
	}
	return out
}
