package kiroauth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// tokenKeys are tried in order against auth_kv(key,value) until one yields a
// value (spec §4.8).
var tokenKeys = []string{
	"kirocli:social:token",
	"kirocli:odic:token",
	"codewhisperer:odic:token",
	"auth_token",
	"aws_sso_token",
	"builder_id_token",
}

// deviceRegistrationKeys are scanned for a matching row once a token key is
// found, to attach client_id/client_secret/region.
var deviceRegistrationKeys = []string{
	"kirocli:odic:device-registration",
	"kirocli:social:device-registration",
}

// SqliteStore reads/writes a Kiro CLI auth_kv SQLite database (spec §4.8).
type SqliteStore struct {
	path string
}

// NewSqliteStore returns a store rooted at the SQLite file at path.
func NewSqliteStore(path string) *SqliteStore {
	return &SqliteStore{path: path}
}

type sqliteTokenValue struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Region       string `json:"region"`
	ExpiresAt    string `json:"expires_at"`
}

type sqliteDeviceRegValue struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Region       string `json:"region"`
}

// Load opens the database read-only and tries each known key in order.
func (s *SqliteStore) Load() (*TokenInfo, error) {
	db, err := sql.Open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("kiroauth: open %s: %w", s.path, err)
	}
	defer db.Close()

	for _, key := range tokenKeys {
		raw, err := queryValue(db, key)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kiroauth: query %s in %s: %w", key, s.path, err)
		}

		var v sqliteTokenValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("kiroauth: parse value for %s in %s: %w", key, s.path, err)
		}
		expiresAt, err := time.Parse(time.RFC3339, v.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("kiroauth: parse expires_at for %s in %s: %w", key, s.path, err)
		}

		info := &TokenInfo{
			AccessToken:  v.AccessToken,
			RefreshToken: v.RefreshToken,
			Region:       v.Region,
			ExpiresAt:    expiresAt,
			Source:       Source{Kind: SourceSqliteDB, Path: s.path, Key: key},
		}

		for _, regKey := range deviceRegistrationKeys {
			regRaw, err := queryValue(db, regKey)
			if err != nil {
				continue
			}
			var reg sqliteDeviceRegValue
			if err := json.Unmarshal([]byte(regRaw), &reg); err != nil {
				continue
			}
			info.ClientID = reg.ClientID
			info.ClientSecret = reg.ClientSecret
			if info.Region == "" {
				info.Region = reg.Region
			}
			info.Source.RegKey = regKey
			break
		}

		info.AuthType = DetectAuthType(info)
		return info, nil
	}

	return nil, nil
}

func queryValue(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM auth_kv WHERE key = ?`, key).Scan(&value)
	return value, err
}

// Save updates only the originating key's row with a fresh JSON blob.
func (s *SqliteStore) Save(t *TokenInfo) error {
	if t.Source.Kind != SourceSqliteDB || t.Source.Key == "" {
		return fmt.Errorf("kiroauth: token has no originating sqlite key to save to")
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("kiroauth: open %s: %w", s.path, err)
	}
	defer db.Close()

	v := sqliteTokenValue{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Region:       t.Region,
		ExpiresAt:    t.ExpiresAt.UTC().Format(time.RFC3339),
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kiroauth: encode value for %s: %w", t.Source.Key, err)
	}

	_, err = db.Exec(`
		INSERT INTO auth_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, t.Source.Key, string(blob))
	return err
}

// CanHandle reports whether src was produced by this store's Load.
func (s *SqliteStore) CanHandle(src Source) bool {
	return src.Kind == SourceSqliteDB && src.Path == s.path
}
