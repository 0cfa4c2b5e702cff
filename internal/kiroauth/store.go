package kiroauth

// TokenStore is the polymorphic credential-store capability of spec §4.8:
// JsonFileStore, SqliteStore and EnvStore all implement it.
type TokenStore interface {
	// Load reads the current credential, or (nil, nil) if none is present.
	Load() (*TokenInfo, error)
	// Save persists a refreshed TokenInfo back to this store's origin.
	// EnvStore's Save is a no-op.
	Save(*TokenInfo) error
	// CanHandle reports whether a TokenInfo.Source returned by Load from
	// this store can be matched back to it for persistence.
	CanHandle(Source) bool
}
