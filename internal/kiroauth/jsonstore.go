package kiroauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JsonFileStore reads/writes a Kiro desktop credential file, preserving any
// JSON fields it doesn't understand across a save (spec §4.8).
type JsonFileStore struct {
	path string
}

// NewJSONFileStore returns a store rooted at path.
func NewJSONFileStore(path string) *JsonFileStore {
	return &JsonFileStore{path: path}
}

type jsonTokenFile struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
	Region       string `json:"region"`
	ProfileArn   string `json:"profileArn"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	ClientIDHash string `json:"clientIdHash"`
	ExpiresAt    string `json:"expiresAt"`
}

// Load reads and parses the JSON credential file. A missing file yields
// (nil, nil) rather than an error, matching the "or None" contract.
func (s *JsonFileStore) Load() (*TokenInfo, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kiroauth: read %s: %w", s.path, err)
	}

	var parsed jsonTokenFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("kiroauth: parse %s: %w", s.path, err)
	}

	expiresAt, err := time.Parse(time.RFC3339, parsed.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("kiroauth: parse expiresAt in %s: %w", s.path, err)
	}

	info := &TokenInfo{
		RefreshToken: parsed.RefreshToken,
		AccessToken:  parsed.AccessToken,
		ExpiresAt:    expiresAt,
		Region:       parsed.Region,
		ProfileArn:   parsed.ProfileArn,
		ClientID:     parsed.ClientID,
		ClientSecret: parsed.ClientSecret,
		Source:       Source{Kind: SourceJSONFile, Path: s.path},
	}

	if parsed.ClientIDHash != "" && info.ClientID == "" {
		if reg, err := loadDeviceRegistration(parsed.ClientIDHash); err == nil && reg != nil {
			info.ClientID = reg.ClientID
			info.ClientSecret = reg.ClientSecret
			if info.Region == "" {
				info.Region = reg.Region
			}
		}
	}

	info.AuthType = DetectAuthType(info)
	return info, nil
}

// deviceRegistration is the shape of a cached ~/.aws/sso/cache/{hash}.json
// enterprise device registration.
type deviceRegistration struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Region       string `json:"region"`
}

func loadDeviceRegistration(hash string) (*deviceRegistration, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".aws", "sso", "cache", hash+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg deviceRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Save writes t back to the file, updating only the fields this store
// understands and preserving every other JSON key verbatim.
func (s *JsonFileStore) Save(t *TokenInfo) error {
	fields := map[string]json.RawMessage{}
	if raw, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(raw, &fields)
	}

	set := func(key string, value any) {
		encoded, _ := json.Marshal(value)
		fields[key] = encoded
	}
	set("accessToken", t.AccessToken)
	set("refreshToken", t.RefreshToken)
	set("expiresAt", t.ExpiresAt.UTC().Format(time.RFC3339))
	if t.ProfileArn != "" {
		set("profileArn", t.ProfileArn)
	}

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("kiroauth: encode %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("kiroauth: mkdir for %s: %w", s.path, err)
	}
	return os.WriteFile(s.path, out, 0o600)
}

// CanHandle reports whether src was produced by this store's Load.
func (s *JsonFileStore) CanHandle(src Source) bool {
	return src.Kind == SourceJSONFile && src.Path == s.path
}
