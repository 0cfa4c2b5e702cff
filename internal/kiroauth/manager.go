package kiroauth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AuthManager serves cached Kiro access tokens, refreshing them on demand
// and persisting refreshes back to their originating store (spec §4.8).
//
// get_token uses double-checked locking: a cheap read-locked check first,
// then a write-locked refresh that re-checks in case a sibling caller won
// the race and already refreshed. On refresh failure, a still-unexpired
// cached token is returned rather than propagating the error (graceful
// degradation, spec §8 scenario 6).
type AuthManager struct {
	mu          sync.RWMutex
	info        *TokenInfo
	store       TokenStore
	stores      []TokenStore
	now         func() time.Time
	strategyFor func(AuthType) (RefreshStrategy, error)
}

// NewAuthManager returns a manager seeded with info (which may be nil) and
// persisting refreshes to store. stores, if non-empty, is consulted by
// persistLocked to find the store whose CanHandle matches info.Source;
// store is used when no entry in stores matches.
func NewAuthManager(info *TokenInfo, store TokenStore, stores ...TokenStore) *AuthManager {
	return &AuthManager{
		info:        info,
		store:       store,
		stores:      stores,
		now:         time.Now,
		strategyFor: strategyFor,
	}
}

// GetToken returns a valid access token, refreshing first if needed.
func (m *AuthManager) GetToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	info := m.info
	now := m.now()
	if info != nil && !info.NeedsRefresh(now) {
		token := info.AccessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	if err := m.refresh(ctx); err != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.info != nil && m.info.AccessToken != "" && m.info.ExpiresAt.After(now) {
			return m.info.AccessToken, nil
		}
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return "", fmt.Errorf("kiroauth: no credential available")
	}
	return m.info.AccessToken, nil
}

// ForceRefresh clears the cached access token and refreshes unconditionally.
func (m *AuthManager) ForceRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.info != nil {
		m.info.AccessToken = ""
	}
	m.mu.Unlock()
	return m.refresh(ctx)
}

// refresh re-checks under an exclusive lock (a sibling call may have already
// refreshed while this one waited), then dispatches to the matching
// RefreshStrategy and persists the result.
func (m *AuthManager) refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.info != nil && !m.info.NeedsRefresh(now) {
		return nil
	}
	if m.info == nil {
		return fmt.Errorf("kiroauth: no credential loaded to refresh")
	}

	// A sibling process may have already refreshed and written back to the
	// same origin; pick that up instead of hitting the network ourselves.
	if reloaded := m.reloadFromOriginLocked(now); reloaded != nil {
		m.info = reloaded
		return nil
	}

	strategy, err := m.strategyFor(m.info.AuthType)
	if err != nil {
		return err
	}

	update, err := strategy.Refresh(ctx, m.info)
	if err != nil {
		return fmt.Errorf("kiroauth: refresh: %w", err)
	}
	update.Apply(m.info)

	return m.persistLocked()
}

// reloadFromOriginLocked re-reads m.info's originating store and returns the
// freshly loaded TokenInfo if it turns out to already be valid, letting a
// concurrent refresh performed by another process short-circuit our own.
func (m *AuthManager) reloadFromOriginLocked(now time.Time) *TokenInfo {
	for _, s := range m.stores {
		if !s.CanHandle(m.info.Source) {
			continue
		}
		reloaded, err := s.Load()
		if err != nil || reloaded == nil {
			return nil
		}
		if !reloaded.NeedsRefresh(now) {
			return reloaded
		}
		return nil
	}
	return nil
}

// persistLocked saves m.info to the store whose CanHandle matches its
// Source, falling back to m.store if none of stores match.
func (m *AuthManager) persistLocked() error {
	target := m.store
	for _, s := range m.stores {
		if s.CanHandle(m.info.Source) {
			target = s
			break
		}
	}
	if target == nil {
		return nil
	}
	return target.Save(m.info)
}

// Region returns the cached credential's AWS region, or "" if none loaded.
func (m *AuthManager) Region() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Region
}

// ProfileArn returns the cached credential's CodeWhisperer profile ARN, or
// "" if none loaded.
func (m *AuthManager) ProfileArn() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.ProfileArn
}
