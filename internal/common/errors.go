// Package common defines shared constants and sentinel errors used across
// the HTTP, service and repository layers of gophbucket. Callers should use
// errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Access-check errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Provisioning pipeline errors.
	ErrTemplateUnavailable = errors.New("policy template unavailable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrPropagationTimeout  = errors.New("resource propagation timed out")
	ErrPersistenceConflict = errors.New("identity already persisted")
	ErrLockNotAcquired     = errors.New("provisioning already in progress")

	// Issuer-side errors.
	ErrCredentialDecryption = errors.New("credential decryption failed")
)

// StepError records which provisioning step failed and for which derived
// resource. Err carries one of the sentinel errors above.
type StepError struct {
	Step     string
	Resource string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.Step, e.Resource, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError wraps err with step context.
func NewStepError(step, resource string, err error) *StepError {
	return &StepError{Step: step, Resource: resource, Err: err}
}

// StepOf returns the step name carried by err, or "" when err has none.
func StepOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
