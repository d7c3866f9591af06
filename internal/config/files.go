package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ConnectionParams is one vendor connection block inside a JSON document.
// Relational vendors use host/port/user/password/database; mongodb and neo4j
// may instead supply a full URI. secret_path redirects credential lookup to
// the configured secret manager, with the inline values as fallback.
type ConnectionParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`

	// Oracle connects to a service, not a database name.
	Service string `json:"service"`

	// URI overrides host/port for URI-based drivers (mongodb, neo4j).
	URI string `json:"uri"`

	// Optional secret manager lookup.
	SecretPath  string `json:"secret_path"`
	UsernameKey string `json:"username_key"`
	PasswordKey string `json:"password_key"`
}

// TargetEntry is one element of the target configuration array. Entries are
// processed in file order.
type TargetEntry struct {
	Type   string           `json:"type"`
	Config ConnectionParams `json:"config"`
}

// LoadSourceConfig reads the source connection document.
func LoadSourceConfig(path string) (*ConnectionParams, error) {
	if path == "" {
		return nil, fmt.Errorf("source config file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source config %q: %w", path, err)
	}
	var params ConnectionParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse source config %q: %w", path, err)
	}
	return &params, nil
}

// LoadTargetConfigs reads the target configuration array.
func LoadTargetConfigs(path string) ([]TargetEntry, error) {
	if path == "" {
		return nil, fmt.Errorf("target config file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target config %q: %w", path, err)
	}
	var entries []TargetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse target config %q: %w", path, err)
	}
	for i, entry := range entries {
		if strings.TrimSpace(entry.Type) == "" {
			return nil, fmt.Errorf("target config %q: entry %d has no vendor type", path, i)
		}
	}
	return entries, nil
}
