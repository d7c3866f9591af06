package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arwahdevops/schemasync/internal/config"
)

// BuildDSN constructs the driver connection string for a relational dialect
// from a connection document. Username and password are passed separately so
// credentials resolved from a secret manager take precedence over inline
// document values.
func BuildDSN(dialect string, params *config.ConnectionParams, username, password string) (string, error) {
	sslmode := strings.ToLower(params.SSLMode)

	switch strings.ToLower(dialect) {
	case "mysql":
		if params.Host == "" || params.Port == 0 || params.Database == "" {
			return "", fmt.Errorf("mysql connection requires host, port and database")
		}
		sslParam := "tls=false"
		if sslmode != "" && sslmode != "disable" {
			if sslmode == "skip-verify" || sslmode == "preferred" {
				sslParam = "tls=skip-verify"
			} else {
				sslParam = "tls=true"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=10s&readTimeout=60s&writeTimeout=60s&%s",
			username, password, params.Host, params.Port, params.Database, sslParam), nil

	case "postgres":
		if params.Host == "" || params.Port == 0 || params.Database == "" {
			return "", fmt.Errorf("postgresql connection requires host, port and database")
		}
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10",
			params.Host, params.Port, username, password, params.Database, sslmode), nil

	case "sqlite":
		if params.Database == "" {
			return "", fmt.Errorf("sqlite connection requires a database file path")
		}
		return fmt.Sprintf("file:%s?cache=shared&_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000",
			params.Database), nil

	case "sqlserver":
		if params.Host == "" || params.Port == 0 || params.Database == "" {
			return "", fmt.Errorf("sqlserver connection requires host, port and database")
		}
		query := url.Values{}
		query.Set("database", params.Database)
		if sslmode == "" || sslmode == "disable" {
			query.Set("encrypt", "disable")
		} else {
			query.Set("encrypt", "true")
			if sslmode == "skip-verify" || sslmode == "preferred" {
				query.Set("trustservercertificate", "true")
			}
		}
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(username, password),
			Host:     fmt.Sprintf("%s:%d", params.Host, params.Port),
			RawQuery: query.Encode(),
		}
		return u.String(), nil

	case "oracle":
		service := params.Service
		if service == "" {
			service = params.Database
		}
		if params.Host == "" || params.Port == 0 || service == "" {
			return "", fmt.Errorf("oracle connection requires host, port and service")
		}
		u := &url.URL{
			Scheme: "oracle",
			User:   url.UserPassword(username, password),
			Host:   fmt.Sprintf("%s:%d", params.Host, params.Port),
			Path:   service,
		}
		return u.String(), nil

	default:
		return "", fmt.Errorf("cannot build DSN for unsupported dialect %q", dialect)
	}
}
