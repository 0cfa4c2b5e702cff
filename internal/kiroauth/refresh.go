package kiroauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// RefreshStrategy exchanges a TokenInfo's refresh credential for a new
// access token, dispatched by AuthType (spec §4.8).
type RefreshStrategy interface {
	Refresh(ctx context.Context, info *TokenInfo) (TokenUpdate, error)
}

// refreshTimeout bounds every refresh network call (spec §5); refresh is
// never retried by the auth manager on failure.
const refreshTimeout = 30 * time.Second

func newRefreshHTTPClient() *http.Client {
	return &http.Client{Timeout: refreshTimeout}
}

// fingerprint is a stable-per-host identifier embedded in the KiroDesktop
// User-Agent header, the way the Kiro desktop client ties refreshes to a
// specific installation.
func fingerprint() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

// KiroDesktop refreshes against the Kiro desktop auth service.
type KiroDesktop struct {
	httpClient *http.Client
	// endpoint resolves the refresh URL for a given region; overridden in
	// tests to point at an httptest server.
	endpoint func(region string) string
}

// NewKiroDesktop returns a KiroDesktop refresh strategy.
func NewKiroDesktop() *KiroDesktop {
	return &KiroDesktop{
		httpClient: newRefreshHTTPClient(),
		endpoint: func(region string) string {
			return fmt.Sprintf("https://prod.%s.auth.desktop.kiro.dev/refreshToken", region)
		},
	}
}

type kiroDesktopRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type kiroDesktopResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

func (k *KiroDesktop) Refresh(ctx context.Context, info *TokenInfo) (TokenUpdate, error) {
	url := k.endpoint(info.Region)
	body, err := json.Marshal(kiroDesktopRequest{RefreshToken: info.RefreshToken})
	if err != nil {
		return TokenUpdate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TokenUpdate{}, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("KiroIDE-0.7.45-%s", fingerprint()))

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return TokenUpdate{}, fmt.Errorf("kiroauth: kiro desktop refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenUpdate{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenUpdate{}, fmt.Errorf("kiroauth: kiro desktop refresh returned %d: %s", resp.StatusCode, raw)
	}

	var parsed kiroDesktopResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TokenUpdate{}, fmt.Errorf("kiroauth: decode kiro desktop refresh response: %w", err)
	}

	return TokenUpdate{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		ProfileArn:   parsed.ProfileArn,
	}, nil
}

// AwsSsoOidc refreshes against an AWS SSO-OIDC token endpoint.
type AwsSsoOidc struct {
	httpClient *http.Client
	// endpoint resolves the refresh URL for a given region; overridden in
	// tests to point at an httptest server.
	endpoint func(region string) string
}

// NewAwsSsoOidc returns an AwsSsoOidc refresh strategy.
func NewAwsSsoOidc() *AwsSsoOidc {
	return &AwsSsoOidc{
		httpClient: newRefreshHTTPClient(),
		endpoint: func(region string) string {
			return fmt.Sprintf("https://oidc.%s.amazonaws.com/token", region)
		},
	}
}

type awsSsoOidcRequest struct {
	GrantType    string `json:"grantType"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

type awsSsoOidcResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (a *AwsSsoOidc) Refresh(ctx context.Context, info *TokenInfo) (TokenUpdate, error) {
	region := info.SSORegion
	if region == "" {
		region = info.Region
	}
	url := a.endpoint(region)

	body, err := json.Marshal(awsSsoOidcRequest{
		GrantType:    "refresh_token",
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RefreshToken: info.RefreshToken,
	})
	if err != nil {
		return TokenUpdate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TokenUpdate{}, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return TokenUpdate{}, fmt.Errorf("kiroauth: aws sso-oidc refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenUpdate{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenUpdate{}, fmt.Errorf("kiroauth: aws sso-oidc refresh returned %d: %s", resp.StatusCode, raw)
	}

	var parsed awsSsoOidcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TokenUpdate{}, fmt.Errorf("kiroauth: decode aws sso-oidc refresh response: %w", err)
	}

	// profile_arn is not returned by this strategy; TokenUpdate.Apply leaves
	// the existing value untouched when ProfileArn is empty.
	return TokenUpdate{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

// strategyFor resolves the refresh strategy for a TokenInfo's auth_type.
func strategyFor(authType AuthType) (RefreshStrategy, error) {
	switch authType {
	case AuthKiroDesktop:
		return NewKiroDesktop(), nil
	case AuthAwsSsoOidc:
		return NewAwsSsoOidc(), nil
	default:
		return nil, fmt.Errorf("kiroauth: no refresh strategy for auth_type %q", authType)
	}
}
