package domain

import "errors"

var (
	// Terminal verification errors; callers must not retry these.
	ErrNotFound         = errors.New("payment record not found")
	ErrSignatureInvalid = errors.New("payment verification failed")
	ErrAmountMismatch   = errors.New("payment verification failed")

	// Retryable: the gateway refused our credentials or could not be reached.
	ErrGatewayAuth        = errors.New("gateway authentication failed")
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// The subject exceeded the verify endpoint's per-window allowance.
	ErrRateLimited = errors.New("rate limited")

	// Storage-layer errors
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
