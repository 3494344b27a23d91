package files

import "errors"

// Sentinel errors for the public API contract. The messages are the exact
// client-visible reason strings, so they are capitalized like API responses
// rather than like Go errors.
var (
	// ErrUnauthorized: missing or invalid session token.
	ErrUnauthorized = errors.New("Unauthorized")

	// Validation errors, in fixed check order.
	ErrMissingName = errors.New("Missing name")
	ErrMissingType = errors.New("Missing type")
	ErrMissingData = errors.New("Missing data")

	// Parent reference errors.
	ErrParentNotFound  = errors.New("Parent not found")
	ErrParentNotFolder = errors.New("Parent is not a folder")

	// ErrNotFound covers both absent records and access denial, so callers
	// cannot distinguish existence from ownership.
	ErrNotFound = errors.New("Not found")

	// ErrFolderNoContent: download attempted on a folder.
	ErrFolderNoContent = errors.New("A folder doesn't have content")
)
