package kv

import (
	"context"
	"strings"

	"github.com/riakpersist/riakpersist/kit/tracing"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PurgeAll deletes every key of every bucket whose name starts with the
// manager's bucket prefix. It stops at the first error, leaving whatever
// was not yet deleted in place.
func (m *Manager) PurgeAll(ctx context.Context) error {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	var limiter *rate.Limiter
	if m.config.PurgeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.config.PurgeRate), 1)
	}

	buckets, err := m.client.ListBuckets(ctx)
	if err != nil {
		return tracing.LogError(span, err)
	}

	for _, bucket := range buckets {
		if !strings.HasPrefix(bucket, m.config.BucketPrefix) {
			continue
		}
		n, err := m.purgeBucket(ctx, bucket, limiter)
		m.log.Info("Purged bucket", zap.String("bucket", bucket), zap.Int("keys", n))
		if err != nil {
			return tracing.LogError(span, err)
		}
	}
	return nil
}

func (m *Manager) purgeBucket(ctx context.Context, bucket string, limiter *rate.Limiter) (int, error) {
	keys, err := m.client.ListKeys(ctx, bucket)
	if err != nil {
		return 0, err
	}

	for i, key := range keys {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return i, err
			}
		}
		if err := m.client.Delete(ctx, bucket, key); err != nil {
			return i, err
		}
		m.metrics.purged.WithLabelValues(bucket).Inc()
	}
	return len(keys), nil
}
