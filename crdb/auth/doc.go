// Package auth fetches OIDC id_tokens from an identity provider's OAuth2
// token endpoint. CockroachDB validates the token itself; this package only
// obtains it (password and refresh grants) and offers an unverified claim
// peek for logging token lifetimes.
package auth
