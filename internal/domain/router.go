package domain

import (
	"context"
	"log/slog"
)

// Classifier is the model-assisted classification dependency. Implementations
// may fail; the Router absorbs those failures.
type Classifier interface {
	Classify(ctx context.Context, query string) (Classification, error)
}

// Router performs query-time classification with caching and a safe-default
// failure policy. The retrieval pipeline calls Route on every query; Route
// never returns an error.
type Router struct {
	classifier Classifier
	cache      *Cache
	logger     *slog.Logger
}

// NewRouter creates a Router. cache must not be nil; pass NewCache(ttl).
func NewRouter(classifier Classifier, cache *Cache, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		classifier: classifier,
		cache:      cache,
		logger:     logger,
	}
}

// Route classifies query into domains. Results are cached by normalized query
// text; on any classifier failure the fixed safe default is returned instead
// of an error.
func (r *Router) Route(ctx context.Context, query string) Classification {
	if cached, ok := r.cache.Get(query); ok {
		r.logger.Debug("classification cache hit", "query", truncate(query, 50))
		return cached
	}

	result, err := r.classifier.Classify(ctx, query)
	if err != nil {
		r.logger.Error("intent classification failed", "error", err)
		return SafeDefault()
	}

	result = normalize(result)
	r.cache.Put(query, result)

	r.logger.Info("classified query",
		"primary", result.Primary,
		"secondary", result.Secondary,
		"confidence", result.Confidence,
	)
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
