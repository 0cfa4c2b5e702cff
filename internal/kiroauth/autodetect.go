package kiroauth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultSqliteDBs are the two locations the Kiro CLI and the Amazon Q
// Developer CLI store their auth_kv keystore under, relative to the user's
// home directory.
var defaultSqliteDBs = []string{
	filepath.Join(".local", "share", "kiro-cli", "data.sqlite3"),
	filepath.Join(".local", "share", "amazon-q-developer-cli", "data.sqlite3"),
}

// ssoCacheDir is where AWS SSO device-registration and (occasionally)
// cached token JSON files live.
var ssoCacheDir = filepath.Join(".aws", "sso", "cache")

// AutoDetectProvider wraps an AuthManager and discovers its credential from
// whichever store on disk yields one first (spec §4.8): an explicit JSON
// file, an explicit SQLite DB, every *.json under ~/.aws/sso/cache, and the
// two default Kiro/Q CLI SQLite DBs, in that order.
type AutoDetectProvider struct {
	stores   []TokenStore
	manager  *AuthManager
	resolved bool
}

// AutoDetectOptions names explicit store locations to try before the
// default discovery set. Either field may be left empty.
type AutoDetectOptions struct {
	JSONFilePath string
	SqliteDBPath string
}

// NewAutoDetectProvider builds the candidate store list and an AuthManager
// with no credential loaded yet; the first GetToken call performs discovery.
func NewAutoDetectProvider(opts AutoDetectOptions) (*AutoDetectProvider, error) {
	var stores []TokenStore

	if opts.JSONFilePath != "" {
		stores = append(stores, NewJSONFileStore(opts.JSONFilePath))
	}
	if opts.SqliteDBPath != "" {
		stores = append(stores, NewSqliteStore(opts.SqliteDBPath))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("kiroauth: resolve home directory: %w", err)
	}

	cacheDir := filepath.Join(home, ssoCacheDir)
	entries, _ := os.ReadDir(cacheDir)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stores = append(stores, NewJSONFileStore(filepath.Join(cacheDir, e.Name())))
	}

	for _, rel := range defaultSqliteDBs {
		stores = append(stores, NewSqliteStore(filepath.Join(home, rel)))
	}

	return &AutoDetectProvider{
		stores:  stores,
		manager: NewAuthManager(nil, nil, stores...),
	}, nil
}

// discover tries each store in order, stopping at the first that yields a
// non-nil TokenInfo.
func (p *AutoDetectProvider) discover() error {
	for _, store := range p.stores {
		info, err := store.Load()
		if err != nil {
			continue
		}
		if info == nil {
			continue
		}
		p.manager.mu.Lock()
		p.manager.info = info
		p.manager.store = store
		p.manager.mu.Unlock()
		p.resolved = true
		return nil
	}
	return fmt.Errorf("kiroauth: no store yielded a credential")
}

// GetToken performs discovery on first use, then delegates to the
// underlying AuthManager for cached/refreshed access.
func (p *AutoDetectProvider) GetToken(ctx context.Context) (string, error) {
	if !p.resolved {
		if err := p.discover(); err != nil {
			return "", err
		}
	}
	return p.manager.GetToken(ctx)
}

// Manager exposes the underlying AuthManager once a store has resolved, for
// callers that need Region/ProfileArn/ForceRefresh.
func (p *AutoDetectProvider) Manager() *AuthManager {
	return p.manager
}
