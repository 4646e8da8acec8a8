package arbor

import "log/slog"

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger routes the store's diagnostics through l instead of
// slog.Default(). The store logs commits and notification rounds at Debug
// and callback failures at Warn.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRevisionSource replaces the UUIDv7 revision source. Tests pass
// NewFixedSource or a SequentialSource to make commit identities
// deterministic.
func WithRevisionSource(src RevisionSource) Option {
	return func(s *Store) {
		if src != nil {
			s.revSrc = src
		}
	}
}

// WithAccessorCacheSize bounds the accessor identity cache.
//
// Default: 1024 entries (defaultAccessorCacheSize). Larger trees with many
// long-lived container cursors may want more; the cache costs one path
// string and two words per entry.
func WithAccessorCacheSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.cacheSize = size
		}
	}
}
