package secrets

import "context"

// Credentials holds the username and password resolved for one connection
// document entry.
type Credentials struct {
	Username string
	Password string
}

// SecretManager is the contract a secret backend fulfils. Connection
// documents reference secrets by path plus the key names holding the
// username and password within the secret data.
type SecretManager interface {
	// GetCredentials retrieves database credentials from the backend.
	// pathOrID locates the secret; usernameKey and passwordKey select
	// the fields within it.
	GetCredentials(ctx context.Context, pathOrID string, usernameKey string, passwordKey string) (*Credentials, error)

	// IsEnabled reports whether this backend is configured and usable.
	IsEnabled() bool
}
