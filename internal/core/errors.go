package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the gateway, the invoice executors and the
// transport adapters. Adapters map them to user-facing messages and status
// codes with errors.Is.
var (
	// ErrNotAuthenticated means no usable provider credentials were found.
	ErrNotAuthenticated = errors.New("not authenticated with QuickBooks")

	// ErrNotFound means exact-match resolution found no invoice.
	ErrNotFound = errors.New("invoice not found")

	// ErrCustomerNotFound means no existing customer matched the given name.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrValidation covers arguments rejected before any downstream call.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidEmail is the ErrValidation case for malformed recipients.
	ErrInvalidEmail = fmt.Errorf("%w: invalid email address", ErrValidation)

	// ErrProvider wraps every downstream fault.
	ErrProvider = errors.New("accounting provider error")

	// ErrUnsupported is a provider fault for a capability the connected
	// company or gateway does not offer.
	ErrUnsupported = fmt.Errorf("%w: operation not supported", ErrProvider)

	// ErrTimeout means the turn ran past its deadline and was abandoned.
	ErrTimeout = errors.New("request timed out")
)

// Kind is the machine-readable error category carried in tool results.
type Kind string

const (
	KindNotAuthenticated Kind = "not_authenticated"
	KindNotFound         Kind = "not_found"
	KindCustomerNotFound Kind = "customer_not_found"
	KindValidation       Kind = "validation"
	KindUnsupported      Kind = "unsupported"
	KindProvider         Kind = "provider"
	KindTimeout          Kind = "timeout"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. Order matters: ErrUnsupported and ErrInvalidEmail
// wrap broader sentinels and must be checked before them.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.Is(err, ErrCustomerNotFound):
		return KindCustomerNotFound
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindInternal
	}
}
