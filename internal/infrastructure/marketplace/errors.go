package marketplace

import "errors"

// Errors shared by the marketplace adapters
var (
	// ErrUnavailable means the marketplace could not be reached at all
	ErrUnavailable = errors.New("marketplace: platform unavailable")
	// ErrRequestFailed means the marketplace rejected the request
	ErrRequestFailed = errors.New("marketplace: request failed")
	// ErrListingNotFound means the referenced listing does not exist on the marketplace
	ErrListingNotFound = errors.New("marketplace: listing not found")
	// ErrInvalidResponse means the marketplace returned a payload we cannot parse
	ErrInvalidResponse = errors.New("marketplace: invalid response")
)
