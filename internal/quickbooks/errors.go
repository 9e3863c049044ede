package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"invoice-agent/internal/core"
)

// FaultError is a flattened provider fault. Error returns only the most
// useful human-readable text; the nested fault structure is not exposed.
type FaultError struct {
	Status  int
	Code    string
	Message string

	kind  error
	cause error
}

func (e *FaultError) Error() string { return e.Message }

// Unwrap exposes the core sentinel the fault was classified as and, for
// failures without a response, the underlying cause.
func (e *FaultError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

const unknownError = "unknown error"

// faultFromResponse builds a FaultError from a non-2xx response or a 2xx
// response that carried a Fault body.
func faultFromResponse(status int, body []byte) *FaultError {
	fe := &FaultError{Status: status}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Fault != nil && len(env.Fault.Errors) > 0 {
		first := env.Fault.Errors[0]
		fe.Code = first.Code
		fe.Message = firstNonEmpty(first.Detail, first.Message)
		fe.kind = classify(status, env.Fault.Type, first.Code, first.Message+" "+first.Detail)
	} else {
		fe.kind = classify(status, "", "", string(body))
	}

	if fe.Message == "" && status != 0 {
		fe.Message = fmt.Sprintf("QuickBooks returned HTTP %d %s", status, http.StatusText(status))
	}
	if fe.Message == "" {
		fe.Message = unknownError
	}
	return fe
}

// contextFault reports a call cut short by its context. The message names
// neither the endpoint nor the Go error.
func contextFault(ctxErr error) *FaultError {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &FaultError{Message: "QuickBooks did not respond in time", kind: core.ErrTimeout, cause: ctxErr}
	}
	return &FaultError{Message: "the request to QuickBooks was cancelled", kind: core.ErrProvider, cause: ctxErr}
}

// transportFault wraps a failure that never produced a provider response.
func transportFault(err error) *FaultError {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		// drop the request URL, it carries the realm id
		err = uerr.Err
	}
	msg := unknownError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &FaultError{Message: msg, kind: core.ErrProvider}
}

func classify(status int, faultType, code, text string) error {
	lower := strings.ToLower(text)
	switch {
	case status == http.StatusUnauthorized || strings.EqualFold(faultType, "AUTHENTICATION") || code == "3200":
		return core.ErrNotAuthenticated
	case status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented ||
		strings.Contains(lower, "unsupported operation") || strings.Contains(lower, "not supported"):
		return core.ErrUnsupported
	case status == http.StatusNotFound || code == "610" ||
		strings.Contains(lower, "not found") || strings.Contains(lower, "inactive"):
		return core.ErrNotFound
	default:
		return core.ErrProvider
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
