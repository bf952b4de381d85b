package storage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"s3repo/internal/errs"
)

const (
	defaultRetries    = 3
	defaultRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 2 * time.Second
)

// Retrying wraps a Storage and retries transient failures with exponential
// backoff. NotFound, configuration errors and cancellation are returned
// immediately.
type Retrying struct {
	inner      Storage
	retries    int
	retryDelay time.Duration
	log        *zap.SugaredLogger
}

func NewRetrying(inner Storage, retries int, retryDelayMs int, log *zap.SugaredLogger) *Retrying {
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := time.Duration(retryDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &Retrying{inner: inner, retries: retries, retryDelay: delay, log: log}
}

func (r *Retrying) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.do(ctx, "exists", key, func() error {
		var err error
		exists, err = r.inner.Exists(ctx, key)
		return err
	})
	return exists, err
}

func (r *Retrying) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var reader io.ReadCloser
	err := r.do(ctx, "get", key, func() error {
		var err error
		reader, err = r.inner.Get(ctx, key)
		return err
	})
	return reader, err
}

func (r *Retrying) Put(ctx context.Context, localPath string, key string, visibility Visibility) error {
	return r.do(ctx, "put", key, func() error {
		return r.inner.Put(ctx, localPath, key, visibility)
	})
}

func (r *Retrying) Stat(ctx context.Context, key string) (FileInfo, error) {
	var info FileInfo
	err := r.do(ctx, "stat", key, func() error {
		var err error
		info, err = r.inner.Stat(ctx, key)
		return err
	})
	return info, err
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	var files []FileInfo
	err := r.do(ctx, "list", prefix, func() error {
		var err error
		files, err = r.inner.List(ctx, prefix)
		return err
	})
	return files, err
}

func (r *Retrying) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", key, func() error {
		return r.inner.Delete(ctx, key)
	})
}

func (r *Retrying) GetPath(key string) string {
	return r.inner.GetPath(key)
}

// Unwrap returns the decorated store.
func (r *Retrying) Unwrap() Storage {
	return r.inner
}

func (r *Retrying) do(ctx context.Context, op string, key string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.IsTransient(err) || attempt == r.retries-1 {
			return err
		}
		delay := r.delay(attempt)
		r.log.Warnf("%s %s failed (attempt %d/%d), retrying in %s: %v", op, key, attempt+1, r.retries, delay, err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (r *Retrying) delay(attempt int) time.Duration {
	delay := r.retryDelay * time.Duration(1<<attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
