package auth

import "errors"

var (
	// ErrInvalidCredentialFormat is returned when a presented credential
	// does not split into a key id and secret
	ErrInvalidCredentialFormat = errors.New("invalid credential format")

	// ErrInvalidCredential is returned for unknown, revoked, or
	// secret-mismatched credentials. The three cases are deliberately
	// indistinguishable so callers cannot probe for key existence.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrStoreUnavailable is returned when the credential store or the
	// cache cannot be reached; admission must fail closed on it
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrUserNotFound is returned when an operation targets an unknown user
	ErrUserNotFound = errors.New("user not found")

	// ErrKeyNotFoundOrRevoked is returned by management operations on a
	// key id that does not exist or was already revoked
	ErrKeyNotFoundOrRevoked = errors.New("api key not found or revoked")
)
