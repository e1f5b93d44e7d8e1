package dns

import "errors"

var (
	// ErrNotFound indicates the requested zone or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates missing or invalid provider credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStaleZone indicates a stored zone id that no longer resolves,
	// typically because the zone was recreated under a new id.
	ErrStaleZone = errors.New("stale zone id")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrConflict indicates the record already exists or clashes with another.
	ErrConflict = errors.New("conflict")

	// ErrInvalidName indicates a subdomain that cannot be split into a
	// registrable domain and a label.
	ErrInvalidName = errors.New("invalid domain name")

	// ErrUnknownProvider indicates a provider id or type with no backend.
	ErrUnknownProvider = errors.New("unknown DNS provider")
)
