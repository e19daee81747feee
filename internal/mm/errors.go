package mm

import "errors"

var (
	// ErrConfigUnavailable means the config store could not be reached.
	// The caller keeps its last-known-good configuration and retries on
	// the next poll; it never halts trading for this alone.
	ErrConfigUnavailable = errors.New("mm: config store unavailable")

	// ErrConfigMissing means the store is healthy but holds no
	// configuration for the symbol.
	ErrConfigMissing = errors.New("mm: no configuration for symbol")

	// ErrInvalidLevelConfig means the configured quote levels would
	// produce crossed or degenerate prices. Quoting for the symbol is
	// rejected until the configuration is corrected.
	ErrInvalidLevelConfig = errors.New("mm: invalid quote level configuration")

	// ErrVenueUnreachable wraps a failed or timed-out venue call. The
	// cycle is skipped and the resting-order belief preserved.
	ErrVenueUnreachable = errors.New("mm: venue unreachable")

	// ErrSymbolStopped is returned by a runner that received its stop
	// signal and flattened.
	ErrSymbolStopped = errors.New("mm: symbol runner stopped")
)
