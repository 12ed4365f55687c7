package authgate

import "errors"

// Authentication failures. All of them are terminal for the call: retrying
// verification of a malformed, expired, or revoked credential cannot succeed.
var (
	// ErrCredentialMissing is returned when no credential is present on a
	// request whose path is not allow-listed.
	ErrCredentialMissing = errors.New("authgate: credential missing")
	// ErrTokenMalformed is returned when a credential cannot be parsed, or
	// when it carries the wrong claim kind for the operation.
	ErrTokenMalformed = errors.New("authgate: token malformed")
	// ErrTokenSignatureInvalid is returned when the signature does not verify.
	ErrTokenSignatureInvalid = errors.New("authgate: token signature invalid")
	// ErrTokenExpired is returned once now is past the credential's expiry.
	ErrTokenExpired = errors.New("authgate: token expired")
	// ErrTokenRevoked is returned when an otherwise valid access token is
	// present in the revocation blacklist.
	ErrTokenRevoked = errors.New("authgate: token revoked")
	// ErrSessionNotFound is returned when no refresh session matches.
	ErrSessionNotFound = errors.New("authgate: session not found")
	// ErrSessionRevoked is returned when the refresh session was revoked.
	ErrSessionRevoked = errors.New("authgate: session revoked")
	// ErrSessionExpired is returned when the refresh session's lifetime passed.
	ErrSessionExpired = errors.New("authgate: session expired")
	// ErrUserInactive is returned for disabled accounts.
	ErrUserInactive = errors.New("authgate: user inactive")
	// ErrInvalidCredentials is returned on login when the identifier or
	// password does not match. Deliberately indistinguishable between the two.
	ErrInvalidCredentials = errors.New("authgate: invalid credentials")
	// ErrUserNotFound is the sentinel a UserProvider returns for absent users.
	ErrUserNotFound = errors.New("authgate: user not found")
)

// Authorization failures. Terminal for the call; no retry changes the outcome
// without a privilege change.
var (
	ErrInsufficientRole       = errors.New("authgate: insufficient role")
	ErrInsufficientPermission = errors.New("authgate: insufficient permission")
	ErrInsufficientPrivilege  = errors.New("authgate: insufficient privilege")
)

// Infrastructure failures.
var (
	// ErrStorageUnavailable wraps backing-store failures and timeouts. It is
	// retryable at the request layer and must never be mapped to an
	// authentication rejection.
	ErrStorageUnavailable = errors.New("authgate: storage unavailable")
	// ErrEngineNotReady is returned by Engine methods before Build completed.
	ErrEngineNotReady = errors.New("authgate: engine not initialized")
)
