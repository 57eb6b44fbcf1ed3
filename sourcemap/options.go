package sourcemap

import "go.uber.org/zap"

// Option configures an Engine at Create time.
type Option func(*Engine)

// WithLogger attaches a structured logger. The default is a no-op logger,
// so engines are silent unless a caller opts in.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithClosestCacheSize bounds the FindClosestMapping result cache. Zero
// disables caching.
func WithClosestCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}
