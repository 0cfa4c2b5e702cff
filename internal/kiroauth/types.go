// Package kiroauth implements the Kiro authentication subsystem of spec
// §4.8: polymorphic token stores, auth-type detection, refresh strategies,
// and an AuthManager providing cached, gracefully-degrading token access.
package kiroauth

import "time"

// AuthType selects which refresh strategy a TokenInfo dispatches to.
type AuthType string

const (
	AuthKiroDesktop AuthType = "KiroDesktop"
	AuthAwsSsoOidc  AuthType = "AwsSsoOidc"
	AuthUnknown     AuthType = "Unknown"
)

// SourceKind distinguishes which store a TokenInfo was loaded from, so a
// refreshed token is persisted back to its origin.
type SourceKind string

const (
	SourceJSONFile    SourceKind = "JsonFile"
	SourceSqliteDB    SourceKind = "SqliteDb"
	SourceEnvironment SourceKind = "Environment"
	SourceAuto        SourceKind = "Auto"
)

// Source identifies where a TokenInfo came from and, for JsonFile/SqliteDb,
// what's needed to persist a refresh back to it.
type Source struct {
	Kind   SourceKind
	Path   string // JsonFile path, or SqliteDb path
	Key    string // SqliteDb: the auth_kv row key this token was read from
	RegKey string // SqliteDb: the device-registration row key, if any
}

// TokenInfo is the gateway's in-memory view of a Kiro/AWS SSO credential
// (spec §3).
type TokenInfo struct {
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
	Region       string
	ProfileArn   string
	ClientID     string
	ClientSecret string
	SSORegion    string
	Scopes       []string
	AuthType     AuthType
	Source       Source
}

// needsRefreshWindow is the "expires within" margin spec §3 requires
// (10 minutes).
const needsRefreshWindow = 10 * time.Minute

// NeedsRefresh reports whether t should be refreshed before use: either the
// access token is empty, or it expires within 10 minutes of now.
func (t *TokenInfo) NeedsRefresh(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return t.ExpiresAt.Sub(now) < needsRefreshWindow
}

// DetectAuthType classifies a freshly loaded TokenInfo per spec §4.8: both
// client_id and client_secret present → AwsSsoOidc; else a refresh_token
// present → KiroDesktop; else Unknown.
func DetectAuthType(t *TokenInfo) AuthType {
	switch {
	case t.ClientID != "" && t.ClientSecret != "":
		return AuthAwsSsoOidc
	case t.RefreshToken != "":
		return AuthKiroDesktop
	default:
		return AuthUnknown
	}
}

// TokenUpdate is the delta a refresh strategy applies to a TokenInfo.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string // empty means "unchanged"
	ExpiresAt    time.Time
	ProfileArn   string // empty means "unchanged"
}

// Apply merges u into t in place.
func (u TokenUpdate) Apply(t *TokenInfo) {
	t.AccessToken = u.AccessToken
	if u.RefreshToken != "" {
		t.RefreshToken = u.RefreshToken
	}
	t.ExpiresAt = u.ExpiresAt
	if u.ProfileArn != "" {
		t.ProfileArn = u.ProfileArn
	}
}
