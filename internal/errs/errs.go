// Package errs defines the connector's closed set of error kinds. Every
// fallible operation in the core returns one of these, wrapped over its
// underlying cause, instead of relying on ad-hoc sentinel values or panics
// for expected flow.
package errs

import "fmt"

// Kind enumerates the error categories the core can surface. It is a closed
// set: adding a chain or a new failure mode means adding a case here, not
// inventing a parallel error type elsewhere.
type Kind int

const (
	KindUnknown Kind = iota
	KindWalletNotActive
	KindPeerUnknown
	KindChannelNotFound
	KindInvalidSignature
	KindNonceNotMonotonic
	KindTransferredExceedsDeposit
	KindCreditLimitExceeded
	KindReverted
	KindTimeout
	KindTransportRejected
	KindLedgerUnavailable
	KindPersistenceFailure
	KindRateLimitExceeded
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindWalletNotActive:
		return "WalletNotActive"
	case KindPeerUnknown:
		return "PeerUnknown"
	case KindChannelNotFound:
		return "ChannelNotFound"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindNonceNotMonotonic:
		return "NonceNotMonotonic"
	case KindTransferredExceedsDeposit:
		return "TransferredExceedsDeposit"
	case KindCreditLimitExceeded:
		return "CreditLimitExceeded"
	case KindReverted:
		return "Reverted"
	case KindTimeout:
		return "Timeout"
	case KindTransportRejected:
		return "TransportRejected"
	case KindLedgerUnavailable:
		return "LedgerUnavailable"
	case KindPersistenceFailure:
		return "PersistenceFailure"
	case KindRateLimitExceeded:
		return "RateLimitExceeded"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Error is the concrete error value carried through the system. Reason
// carries the kind-specific detail (a revert reason, a rejection message,
// an unsupported chain tag); Err carries the wrapped underlying cause, if
// any.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" && e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Reason, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, making
// errors.Is(err, errs.Of(KindTimeout)) the idiomatic check regardless of how
// deeply err was wrapped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Of returns a bare sentinel of the given kind, suitable only for use with
// errors.Is — it carries no reason or wrapped cause.
func Of(kind Kind) error {
	return &Error{Kind: kind}
}

// New returns a new Error of the given kind with a reason but no wrapped cause.
func New(kind Kind, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap returns a new Error of the given kind wrapping err, with an optional reason.
func Wrap(kind Kind, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// As extracts the *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
