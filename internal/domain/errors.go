package domain

import "errors"

// Error taxonomy. Match with errors.Is.
var (
	// ErrConfiguration marks missing or invalid tunables. Raised at construction.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataInconsistency marks input that would corrupt weight math:
	// non-positive prices, lot sizes below one, duplicate tickers and the like.
	ErrDataInconsistency = errors.New("data inconsistency")

	// ErrUnknownInstrument is returned when a ticker has no instrument metadata.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrExecution marks a failed order submission.
	ErrExecution = errors.New("execution error")

	// ErrAccountNotFound is returned by brokers for unknown account ids.
	ErrAccountNotFound = errors.New("account not found")

	// ErrIndexNotFound is returned by index providers for unknown index names.
	ErrIndexNotFound = errors.New("index not found")
)
