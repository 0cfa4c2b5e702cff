package kiroauth

import (
	"os"
	"time"
)

// EnvStore loads a refresh token and overlay fields from the process
// environment (spec §4.8). Save is a no-op: there is nowhere to persist an
// environment-sourced credential.
type EnvStore struct {
	defaultRegion string
}

// NewEnvStore returns a store that falls back to defaultRegion when
// GAUD_KIRO_REGION is unset.
func NewEnvStore(defaultRegion string) *EnvStore {
	return &EnvStore{defaultRegion: defaultRegion}
}

// Load reads GAUD_KIRO_REFRESH_TOKEN (or KIRO_REFRESH_TOKEN) plus the
// region/profile-arn overlay variables. Returns (nil, nil) if neither
// refresh token variable is set.
func (s *EnvStore) Load() (*TokenInfo, error) {
	refresh := os.Getenv("GAUD_KIRO_REFRESH_TOKEN")
	if refresh == "" {
		refresh = os.Getenv("KIRO_REFRESH_TOKEN")
	}
	if refresh == "" {
		return nil, nil
	}

	region := os.Getenv("GAUD_KIRO_REGION")
	if region == "" {
		region = s.defaultRegion
	}

	info := &TokenInfo{
		RefreshToken: refresh,
		Region:       region,
		ProfileArn:   os.Getenv("GAUD_KIRO_PROFILE_ARN"),
		// Unset: forces an immediate refresh on first use.
		ExpiresAt: time.Time{},
		Source:    Source{Kind: SourceEnvironment},
	}
	info.AuthType = DetectAuthType(info)
	return info, nil
}

// Save is a no-op: environment-sourced credentials have no backing file to
// update.
func (s *EnvStore) Save(*TokenInfo) error { return nil }

// CanHandle reports whether src originated from an EnvStore.
func (s *EnvStore) CanHandle(src Source) bool {
	return src.Kind == SourceEnvironment
}
