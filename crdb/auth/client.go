package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LerianStudio/lib-crdb/crdb/log"
)

const (
	defaultTimeout = 10 * time.Second

	// tokenScope asks for an id_token plus a refresh_token.
	tokenScope = "openid offline_access"

	// maxErrorBodyBytes caps how much of an error response is kept.
	maxErrorBodyBytes = 2048
)

// ErrMissingIDToken indicates the token endpoint answered 200 without an
// id_token, usually a scope or client configuration problem.
var ErrMissingIDToken = errors.New("token response contains no id_token")

// TokenEndpointError reports a non-2xx answer from the token endpoint.
type TokenEndpointError struct {
	StatusCode int
	Body       string
}

func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// TokenSet is the token endpoint's answer to a successful grant.
type TokenSet struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// Config configures a token Client.
type Config struct {
	// TokenURL is the identity provider's OAuth2 token endpoint.
	TokenURL string
	// ClientID and ClientSecret authenticate the OAuth2 client via basic auth.
	ClientID     string
	ClientSecret string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	Logger     log.Logger
}

// Client exchanges credentials for tokens at a single identity provider.
// Calls go through a circuit breaker so a flapping provider fails fast
// instead of stalling the workload.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     log.Logger
}

// NewClient builds a token client. TokenURL, ClientID, and ClientSecret are
// required; everything else has defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL is required")
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &log.NoneLogger{}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "identity-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker [%s] changed state: %s -> %s", name, from, to)
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// PasswordGrant exchanges a username and password for a token set.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenSet, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
		"scope":      {tokenScope},
	}

	return c.requestToken(ctx, form)
}

// RefreshGrant exchanges a refresh token for a fresh token set.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"scope":         {tokenScope},
		"refresh_token": {refreshToken},
	}

	return c.requestToken(ctx, form)
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (*TokenSet, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doTokenRequest(ctx, form)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warnf("identity provider temporarily unavailable: %v", err)
			return nil, fmt.Errorf("identity provider unavailable: %w", err)
		}

		return nil, err
	}

	tokens, ok := result.(*TokenSet)
	if !ok {
		return nil, errors.New("unexpected token response type")
	}

	return tokens, nil
}

func (c *Client) doTokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, &TokenEndpointError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tokens TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	if tokens.IDToken == "" {
		return nil, ErrMissingIDToken
	}

	return &tokens, nil
}
