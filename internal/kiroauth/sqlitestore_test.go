package kiroauth

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func newTestAuthKvDB(t *testing.T, rows map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.sqlite3")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE auth_kv (key TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)

	for key, value := range rows {
		_, err := db.Exec(`INSERT INTO auth_kv (key, value) VALUES (?, ?)`, key, value)
		require.NoError(t, err)
	}
	return path
}

func TestSqliteStoreLoadTriesKeysInOrder(t *testing.T) {
	path := newTestAuthKvDB(t, map[string]string{
		"codewhisperer:odic:token": `{"access_token":"wrong","refresh_token":"wrong","region":"us-east-1","expires_at":"2026-01-01T00:00:00Z"}`,
		"kirocli:odic:token":       `{"access_token":"access-1","refresh_token":"refresh-1","region":"us-west-2","expires_at":"2026-06-01T00:00:00Z"}`,
	})

	store := NewSqliteStore(path)
	info, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "access-1", info.AccessToken, "kirocli:odic:token precedes codewhisperer:odic:token in the probe order")
	assert.Equal(t, "refresh-1", info.RefreshToken)
	assert.Equal(t, "us-west-2", info.Region)
	assert.Equal(t, Source{Kind: SourceSqliteDB, Path: path, Key: "kirocli:odic:token"}, info.Source)
}

func TestSqliteStoreLoadNoMatchingKeyReturnsNil(t *testing.T) {
	path := newTestAuthKvDB(t, map[string]string{"unrelated:key": `{}`})
	store := NewSqliteStore(path)
	info, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestSqliteStoreLoadOverlaysDeviceRegistration(t *testing.T) {
	path := newTestAuthKvDB(t, map[string]string{
		"kirocli:odic:token":                `{"access_token":"access-1","refresh_token":"refresh-1","region":"","expires_at":"2026-06-01T00:00:00Z"}`,
		"kirocli:odic:device-registration":  `{"client_id":"client-1","client_secret":"secret-1","region":"ap-south-1"}`,
	})

	store := NewSqliteStore(path)
	info, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "client-1", info.ClientID)
	assert.Equal(t, "secret-1", info.ClientSecret)
	assert.Equal(t, "ap-south-1", info.Region, "empty token-row region falls back to device registration region")
	assert.Equal(t, "kirocli:odic:device-registration", info.Source.RegKey)
	assert.Equal(t, AuthAwsSsoOidc, info.AuthType)
}

func TestSqliteStoreSaveUpdatesOnlyOriginatingKey(t *testing.T) {
	path := newTestAuthKvDB(t, map[string]string{
		"kirocli:odic:token": `{"access_token":"old","refresh_token":"old-refresh","region":"us-east-1","expires_at":"2026-01-01T00:00:00Z"}`,
		"auth_token":         `{"access_token":"untouched"}`,
	})

	store := NewSqliteStore(path)
	info, err := store.Load()
	require.NoError(t, err)

	info.AccessToken = "new"
	info.ExpiresAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(info))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var updated, untouched string
	require.NoError(t, db.QueryRow(`SELECT value FROM auth_kv WHERE key = ?`, "kirocli:odic:token").Scan(&updated))
	require.NoError(t, db.QueryRow(`SELECT value FROM auth_kv WHERE key = ?`, "auth_token").Scan(&untouched))

	assert.Contains(t, updated, `"access_token":"new"`)
	assert.Equal(t, `{"access_token":"untouched"}`, untouched)
}

func TestSqliteStoreSaveRequiresOriginatingKey(t *testing.T) {
	path := newTestAuthKvDB(t, nil)
	store := NewSqliteStore(path)
	err := store.Save(&TokenInfo{Source: Source{Kind: SourceEnvironment}})
	assert.Error(t, err)
}

func TestSqliteStoreCanHandle(t *testing.T) {
	store := NewSqliteStore("/tmp/data.sqlite3")
	assert.True(t, store.CanHandle(Source{Kind: SourceSqliteDB, Path: "/tmp/data.sqlite3"}))
	assert.False(t, store.CanHandle(Source{Kind: SourceSqliteDB, Path: "/tmp/other.sqlite3"}))
}
