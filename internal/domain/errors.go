package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Order construction and precondition failures.
	ErrInvalidOrderParams     = errors.New("invalid order parameters")
	ErrBalanceQueryFailed     = errors.New("balance query failed")
	ErrInsufficientBalance    = errors.New("insufficient collateral balance")
	ErrInsufficientPosition   = errors.New("insufficient position balance")
	ErrInsufficientAllowance  = errors.New("insufficient collateral allowance")
	ErrInsufficientCollateral = errors.New("insufficient collateral for mint")
	ErrConditionUnresolvable  = errors.New("condition not resolvable on chain")
	ErrMarketUnbound          = errors.New("market has no on-chain condition")

	// Signing failures.
	ErrSignerMismatch = errors.New("active signer does not match order maker")
	ErrUserRejected   = errors.New("signature rejected by user")

	// Venue failures.
	ErrVenueUnavailable = errors.New("matching venue unavailable")
	ErrRejectedByVenue  = errors.New("order rejected by matching venue")

	// Settlement states and chain failures.
	ErrAwaitingCounterparty = errors.New("awaiting counterparty signature")
	ErrTxReverted           = errors.New("transaction reverted")
)

// FailureClass buckets every error this system produces into the five
// categories callers branch on. StateInconsistency is a wait/halt state, not
// a true failure.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureUserCancellation
	FailurePrecondition
	FailureVenue
	FailureChain
	FailureStateInconsistency
)

// Classify maps an error chain onto its FailureClass. Unknown errors are
// treated as chain failures only when wrapped by ErrTxReverted or
// ErrBalanceQueryFailed; everything else reports FailureUnknown so callers
// never silently retry an unclassified error.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, ErrUserRejected):
		return FailureUserCancellation
	case errors.Is(err, ErrInvalidOrderParams),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientPosition),
		errors.Is(err, ErrInsufficientAllowance),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrMarketUnbound):
		return FailurePrecondition
	case errors.Is(err, ErrVenueUnavailable),
		errors.Is(err, ErrRejectedByVenue),
		errors.Is(err, ErrRateLimited):
		return FailureVenue
	case errors.Is(err, ErrTxReverted),
		errors.Is(err, ErrBalanceQueryFailed),
		errors.Is(err, ErrConditionUnresolvable):
		return FailureChain
	case errors.Is(err, ErrSignerMismatch),
		errors.Is(err, ErrAwaitingCounterparty):
		return FailureStateInconsistency
	default:
		return FailureUnknown
	}
}

// Retryable reports whether a caller may retry the failed operation
// unmodified. Only transient venue failures qualify; everything else needs
// user action or a different code path first.
func Retryable(err error) bool {
	return errors.Is(err, ErrVenueUnavailable) || errors.Is(err, ErrRateLimited)
}
