package credentials

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"llm-playground/internal/metrics"
	"llm-playground/pkg/logging"
)

// LoggingBackend wraps a Backend with logging + metrics. Values are never
// logged; they carry API keys.
type LoggingBackend struct {
	inner Backend
	name  string
}

// NewLoggingBackend returns a backend that logs and records metrics.
// name labels log lines ("memory", "redis", "sqlite").
func NewLoggingBackend(inner Backend, name string) *LoggingBackend {
	return &LoggingBackend{inner: inner, name: name}
}

func (b *LoggingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := b.inner.Get(ctx, key)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	b.record(ctx, "get", key, result, start, err)
	return value, ok, err
}

func (b *LoggingBackend) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := b.inner.Set(ctx, key, value)
	b.record(ctx, "set", key, resultOf(err), start, err)
	return err
}

func (b *LoggingBackend) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := b.inner.Delete(ctx, key)
	b.record(ctx, "delete", key, resultOf(err), start, err)
	return err
}

func (b *LoggingBackend) Clear(ctx context.Context) error {
	start := time.Now()
	err := b.inner.Clear(ctx)
	b.record(ctx, "clear", "", resultOf(err), start, err)
	return err
}

// Close closes the wrapped backend when it holds resources.
func (b *LoggingBackend) Close() error {
	if c, ok := b.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *LoggingBackend) record(ctx context.Context, op, key, result string, start time.Time, err error) {
	metrics.StoreOpsTotal.WithLabelValues(op, result).Inc()

	fields := []zap.Field{
		zap.String("store_backend", b.name),
		zap.String("store_op", op),
		zap.String("store_result", result), // hit | miss | ok | error
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}
	if key != "" {
		fields = append(fields, zap.String("config_key", key))
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("credential_store_"+op, append(fields, zap.Error(err))...)
		return
	}
	logger.Info("credential_store_"+op, fields...)
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
