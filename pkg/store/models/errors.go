package models

import "errors"

// Sentinel errors reported by the store layer. Handlers and the session
// engine match on these with errors.Is to pick status codes and messages.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrVaultNotFound    = errors.New("vault not found")
	ErrKeyhashMismatch  = errors.New("keyhash does not match")
	ErrVaultAccess      = errors.New("no access to this vault")
	ErrQuotaExceeded    = errors.New("vault storage quota exceeded")
	ErrMissingVaultKeys = errors.New("keyhash or password and salt required")

	ErrShareNotFound = errors.New("share not found")
	ErrFileNotFound  = errors.New("file not found")

	ErrSiteNotFound        = errors.New("site not found")
	ErrPublishFileNotFound = errors.New("published file not found")
	ErrDuplicateSlug       = errors.New("slug already in use")
	ErrSiteLimitReached    = errors.New("site limit reached")
)
