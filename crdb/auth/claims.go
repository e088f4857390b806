package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// jwtPartCount is the number of dot-separated parts in a JWT.
const jwtPartCount = 3

// ErrMalformedToken indicates a token string that is not a decodable JWT.
var ErrMalformedToken = errors.New("malformed token")

// PeekClaims decodes a JWT's payload WITHOUT verifying its signature. The
// database is the party that verifies the token; this exists only so the
// client can log claims such as expiry. Never use it for trust decisions.
func PeekClaims(tokenString string) (map[string]any, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != jwtPartCount {
		return nil, fmt.Errorf("token must have %d parts: %w", jwtPartCount, ErrMalformedToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", ErrMalformedToken)
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", ErrMalformedToken)
	}

	return claims, nil
}

// Expiry extracts the exp claim as a time. The second return is false when
// the claim is absent or not numeric.
func Expiry(claims map[string]any) (time.Time, bool) {
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}

	return time.Unix(int64(exp), 0), true
}
