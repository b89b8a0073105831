package common

import "errors"

// Sentinel errors for VPN supervision operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Connection errors.
	ErrAlreadyConnected = errors.New("connection already active")
	ErrNotConnected     = errors.New("no active connection")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("connection timed out")
	ErrCancelled        = errors.New("operation cancelled")

	// Process errors.
	ErrSpawnFailed           = errors.New("failed to spawn client process")
	ErrUnexpectedTermination = errors.New("client process terminated unexpectedly")
	ErrPermissionDenied      = errors.New("permission denied")

	// Retry errors.
	ErrMaxAttemptsExceeded = errors.New("maximum reconnection attempts exceeded")
	ErrAttemptInFlight     = errors.New("reconnection attempt already in flight")

	// Credential errors.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCredentialsNotFound  = errors.New("credentials not found")
	ErrCredentialStorage    = errors.New("failed to store credentials")
	ErrInvalidSecret        = errors.New("invalid one-time-password secret")
	ErrInvalidPin           = errors.New("invalid PIN format")

	// Configuration errors.
	ErrConfigLoad    = errors.New("failed to load configuration")
	ErrConfigSave    = errors.New("failed to save configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
