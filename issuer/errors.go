package issuer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cpu/vaultcert/acme/resources"
	"github.com/cpu/vaultcert/dns01"
)

// Step names the part of an issuance run that failed.
type Step string

const (
	StepPrecondition Step = "precondition"
	StepOrder        Step = "order"
	StepProvisioning Step = "provisioning"
	StepValidation   Step = "validation"
	StepAnswer       Step = "answer"
	StepReadiness    Step = "readiness"
	StepFinalize     Step = "finalize"
)

// StepError wraps every error returned by Issue with the step that failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step Step, err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Step: step, Err: err}
}

// ConfigurationError is returned when requested names have no managed DNS
// zone. No order is created.
type ConfigurationError struct {
	Names []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no managed DNS zone for %s", strings.Join(e.Names, ", "))
}

// ValidationPendingError is returned when the CA has not finished validating
// the order's challenges. Re-running later may succeed.
type ValidationPendingError struct {
	OrderURL string
}

func (e *ValidationPendingError) Error() string {
	return fmt.Sprintf("order %s is still pending validation", e.OrderURL)
}

// OrderInvalidError is returned when the CA rejected the order. The order can
// not be resumed; a new one is needed.
type OrderInvalidError struct {
	OrderURL string
	Problem  *resources.Problem
}

func (e *OrderInvalidError) Error() string {
	msg := fmt.Sprintf("order %s is invalid", e.OrderURL)
	if e.Problem != nil {
		msg += ": " + e.Problem.String()
		for _, sub := range e.Problem.Subproblems {
			msg += "; " + sub.String()
		}
	}
	return msg
}

// Retryable reports whether re-running the issuance after a delay may succeed
// without operator intervention.
func Retryable(err error) bool {
	var (
		dnsErr     *dns01.DNSValidationError
		pendingErr *ValidationPendingError
	)
	return errors.As(err, &dnsErr) || errors.As(err, &pendingErr)
}
