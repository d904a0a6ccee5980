package domain

import "errors"

// Every error here aborts the settlement call it occurs in; there is no
// partial completion. Callers are expected to obtain fresh permits and
// resubmit.
var (
	// Authorization.
	ErrDeadlineExpired    = errors.New("authorization: deadline expired")
	ErrUnauthorizedAction = errors.New("authorization: unauthorized action")

	// Distribution, strict share-sum policy.
	ErrParticipantsSharesMismatch = errors.New("distribution: participants and shares length mismatch")
	ErrSharesSumTooBig            = errors.New("distribution: shares sum exceeds total share")
	ErrSharesSumTooLow            = errors.New("distribution: shares sum below total share")
	ErrInvalidSharesCount         = errors.New("distribution: invalid shares count")
	ErrInvalidSharesSum           = errors.New("distribution: invalid shares sum")
	ErrNegativeShare              = errors.New("distribution: negative share")

	// Currency transfers.
	ErrIncorrectNativeValue  = errors.New("currency: incorrect native value")
	ErrUnexpectedNativeValue = errors.New("currency: unexpected native value")
	ErrIncorrectTotalAmount  = errors.New("currency: legs do not sum to expected total")
	ErrNegativeAmount        = errors.New("currency: negative leg amount")

	// Market orders.
	ErrInvalidOrderSide      = errors.New("market: invalid order side")
	ErrOrderOutsideTimeRange = errors.New("market: order outside of time range")
	ErrCurrencyNotAllowed    = errors.New("market: currency not allowed")
	ErrInvalidAskSideFee     = errors.New("market: invalid ask side fee")
	ErrInvalidBidSideFee     = errors.New("market: invalid bid side fee")
	ErrUnauthorizedOrder     = errors.New("market: order signature does not recover to maker")
	ErrInvalidOrderHash      = errors.New("market: permit order hash mismatch")
	ErrUnauthorizedAccount   = errors.New("market: caller is not the permitted taker")
	ErrOrderInvalidated      = errors.New("market: order invalidated")

	// Auctions.
	ErrInvalidStartTime   = errors.New("auction: start time not before end time")
	ErrInvalidEndTime     = errors.New("auction: end time not in the future")
	ErrWrongDepositData   = errors.New("auction: deposit metadata disagrees with permit")
	ErrAuctionNotStarted  = errors.New("auction: not started")
	ErrAuctionEnded       = errors.New("auction: already ended")
	ErrAuctionNotEnded    = errors.New("auction: not ended")
	ErrAuctionCompleted   = errors.New("auction: already completed")
	ErrBuyerExists        = errors.New("auction: buyer already set")
	ErrBuyerNotExists     = errors.New("auction: no buyer")
	ErrRaiseTooSmall      = errors.New("auction: raise too small")
	ErrWrongPayment       = errors.New("auction: wrong payment amount")

	// Shared.
	ErrNotFound     = errors.New("not found")
	ErrNotAdmin     = errors.New("caller is not an admin")
	ErrInsufficient = errors.New("ledger: insufficient balance")
	ErrLockHeld     = errors.New("lock already held")
)
