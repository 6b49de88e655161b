// Package bookingerr defines the closed set of error kinds the booking
// concierge's core components return. Controllers and webhook handlers
// branch on Kind, never on error identity or string matching.
package bookingerr

import "fmt"

type Kind string

const (
	InvalidPhone            Kind = "INVALID_PHONE"
	InvalidInput            Kind = "INVALID_INPUT"
	NotFound                Kind = "NOT_FOUND"
	InvalidState            Kind = "INVALID_STATE"
	Conflict                Kind = "CONFLICT"
	AlreadyProcessed        Kind = "ALREADY_PROCESSED"
	CodeGenerationExhausted Kind = "CODE_GENERATION_EXHAUSTED"
	PaymentErrorKind        Kind = "PAYMENT_ERROR"
	ProviderUnavailable     Kind = "PROVIDER_UNAVAILABLE"
	ConfigError             Kind = "CONFIG_ERROR"
	InternalError           Kind = "INTERNAL_ERROR"
)

// Error is the carrier for every error kind the core returns.
type Error struct {
	Kind     Kind
	Msg      string
	Cause    error
	Provider string // set only for PaymentErrorKind
	Code     string // provider-specific code, set only for PaymentErrorKind
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Msg: err.Error(), Cause: err}
}

func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: err}
}

// Payment builds a PaymentErrorKind carrying the provider and its code, per spec §4.5/§4.6.
func Payment(provider, code string, cause error) *Error {
	return &Error{
		Kind:     PaymentErrorKind,
		Msg:      fmt.Sprintf("%s payment error: %s", provider, code),
		Cause:    cause,
		Provider: provider,
		Code:     code,
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error.
// Unrecognized errors are classified InternalError, matching §7's propagation
// policy of treating anything outside the closed set as generic failure.
func KindOf(err error) Kind {
	var be *Error
	if As(err, &be) {
		return be.Kind
	}
	return InternalError
}

// As walks err's single-error Unwrap chain looking for an *Error, the way
// errors.As does for that case; kept local so callers only need this package.
func As(err error, target **Error) bool {
	for err != nil {
		if be, ok := err.(*Error); ok {
			*target = be
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
