package kiroauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKiroDesktopRefreshParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body kiroDesktopRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-in", body.RefreshToken)
		assert.Contains(t, r.Header.Get("User-Agent"), "KiroIDE-0.7.45-")

		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(kiroDesktopResponse{
			AccessToken: "access-out",
			ExpiresIn:   3600,
			ProfileArn:  "arn:profile",
		})
	}))
	defer srv.Close()

	strategy := NewKiroDesktop()
	strategy.endpoint = func(string) string { return srv.URL }

	update, err := strategy.Refresh(context.Background(), &TokenInfo{RefreshToken: "refresh-in", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "access-out", update.AccessToken)
	assert.Equal(t, "arn:profile", update.ProfileArn)
	assert.True(t, update.ExpiresAt.After(time.Now()), "a 3600s expiry should land roughly an hour out")
}

func TestKiroDesktopRefreshNonOkStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid refresh token"}`))
	}))
	defer srv.Close()

	strategy := NewKiroDesktop()
	strategy.endpoint = func(string) string { return srv.URL }

	_, err := strategy.Refresh(context.Background(), &TokenInfo{RefreshToken: "bad"})
	assert.Error(t, err)
}

func TestAwsSsoOidcRefreshSendsClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body awsSsoOidcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body.GrantType)
		assert.Equal(t, "client-id", body.ClientID)
		assert.Equal(t, "client-secret", body.ClientSecret)

		_ = json.NewEncoder(w).Encode(awsSsoOidcResponse{AccessToken: "access-out", ExpiresIn: 1800})
	}))
	defer srv.Close()

	strategy := NewAwsSsoOidc()
	strategy.endpoint = func(string) string { return srv.URL }

	update, err := strategy.Refresh(context.Background(), &TokenInfo{
		RefreshToken: "refresh-in",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Region:       "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "access-out", update.AccessToken)
	assert.Empty(t, update.ProfileArn, "aws sso-oidc refresh never returns a profile arn")
}

func TestAwsSsoOidcRefreshPrefersSsoRegionOverRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(awsSsoOidcResponse{AccessToken: "a", ExpiresIn: 1})
	}))
	defer srv.Close()

	strategy := NewAwsSsoOidc()
	var capturedRegion string
	strategy.endpoint = func(region string) string {
		capturedRegion = region
		return srv.URL
	}

	_, err := strategy.Refresh(context.Background(), &TokenInfo{Region: "us-east-1", SSORegion: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", capturedRegion)
}

func TestStrategyForUnknownAuthTypeErrors(t *testing.T) {
	_, err := strategyFor(AuthUnknown)
	assert.Error(t, err)
}
