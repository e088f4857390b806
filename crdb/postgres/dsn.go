package postgres

import (
	"fmt"
	"strings"
)

// DSNConfig describes one CockroachDB endpoint. When JWTAuthToken is set the
// DSN enables cluster-side JWT authentication and sends the token in the
// password field, which is how CockroachDB expects OIDC id_tokens to arrive.
type DSNConfig struct {
	Host            string
	Port            int
	User            string
	Database        string
	Password        string
	JWTAuthToken    string
	SSLMode         string
	SSLRootCert     string
	ApplicationName string
}

const defaultPort = 26257

// BuildDSN renders the config as a keyword/value connection string accepted
// by the pgx stdlib driver.
func BuildDSN(cfg DSNConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	pairs := []string{
		"host=" + quoteDSNValue(cfg.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + quoteDSNValue(cfg.User),
		"dbname=" + quoteDSNValue(cfg.Database),
	}

	password := cfg.Password
	if cfg.JWTAuthToken != "" {
		password = cfg.JWTAuthToken
	}

	if password != "" {
		pairs = append(pairs, "password="+quoteDSNValue(password))
	}

	if cfg.SSLMode != "" {
		pairs = append(pairs, "sslmode="+quoteDSNValue(cfg.SSLMode))
	}

	if cfg.SSLRootCert != "" {
		pairs = append(pairs, "sslrootcert="+quoteDSNValue(cfg.SSLRootCert))
	}

	if cfg.ApplicationName != "" {
		pairs = append(pairs, "application_name="+quoteDSNValue(cfg.ApplicationName))
	}

	if cfg.JWTAuthToken != "" {
		pairs = append(pairs, "options="+quoteDSNValue("--crdb:jwt_auth_enabled=true"))
	}

	return strings.Join(pairs, " ")
}

// quoteDSNValue single-quotes values containing spaces or quote characters,
// per the libpq keyword/value syntax.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}

	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)

	return "'" + escaped + "'"
}
