package secrets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/config"
)

const lookupTimeout = 15 * time.Second

// Resolve produces the credentials for one connection document entry.
// An entry naming a secret_path resolves through the secret manager
// first; when the lookup fails or no manager is enabled, the document's
// inline values are used instead if present. Entries with neither
// secret_path nor password are returned as-is so password-less vendors
// such as sqlite still connect.
func Resolve(ctx context.Context, mgr SecretManager, params *config.ConnectionParams, alias string, logger *zap.Logger) (Credentials, error) {
	log := logger.With(zap.String("db", alias))

	if params.SecretPath == "" {
		if params.Password != "" {
			log.Debug("Using credentials from the connection document.")
		} else {
			log.Debug("No password and no secret_path in the connection document; connecting without credentials.")
		}
		return Credentials{Username: params.User, Password: params.Password}, nil
	}

	if mgr == nil || !mgr.IsEnabled() {
		if params.Password != "" {
			log.Warn("Connection document sets secret_path but no secret manager is enabled. Using the document's inline credentials.",
				zap.String("path_or_id", params.SecretPath))
			return Credentials{Username: params.User, Password: params.Password}, nil
		}
		return Credentials{}, fmt.Errorf("connection %s sets secret_path %q but no secret manager is enabled (set VAULT_ENABLED=true)", alias, params.SecretPath)
	}

	log.Info("Retrieving credentials from secret manager",
		zap.String("path_or_id", params.SecretPath))

	getCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	creds, err := mgr.GetCredentials(getCtx, params.SecretPath, params.UsernameKey, params.PasswordKey)
	if err != nil || creds == nil || creds.Password == "" {
		if err == nil {
			err = fmt.Errorf("secret has an empty password (path %q)", params.SecretPath)
		}
		if params.Password != "" {
			log.Warn("Secret manager lookup failed. Falling back to the connection document's inline credentials.",
				zap.Error(err))
			return Credentials{Username: params.User, Password: params.Password}, nil
		}
		return Credentials{}, fmt.Errorf("retrieve credentials for %s from secret manager: %w", alias, err)
	}

	username := creds.Username
	if username == "" {
		log.Warn("Secret has no username field. Falling back to the connection document's user.",
			zap.String("document_user", params.User))
		username = params.User
	}
	if username == "" {
		return Credentials{}, fmt.Errorf("password resolved for %s, but no username in either the secret or the connection document", alias)
	}

	log.Info("Credentials resolved from secret manager.")
	return Credentials{Username: username, Password: creds.Password}, nil
}
