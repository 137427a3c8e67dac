package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"llm-playground/internal/metrics"
)

const readBufferSize = 32 * 1024

// Stream is the lazy delta sequence of one streaming call.
//
// It is single-pass: Chunks may be ranged over once, and a second call
// yields nothing. The upstream body is released when iteration ends for
// any reason, including an early break. A Stream that is never iterated
// must be closed with Close.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider Provider
	adapter  adapter
	body     io.ReadCloser
	logger   *zap.Logger
	now      func() time.Time

	started   bool
	err       error
	closeOnce sync.Once
	closeErr  error
}

func newStream(
	ctx context.Context,
	cancel context.CancelFunc,
	provider Provider,
	a adapter,
	body io.ReadCloser,
	logger *zap.Logger,
	now func() time.Time,
) *Stream {
	return &Stream{
		ctx:      ctx,
		cancel:   cancel,
		provider: provider,
		adapter:  a,
		body:     body,
		logger:   logger,
		now:      now,
	}
}

// Provider reports which wire dialect the stream decodes.
func (s *Stream) Provider() Provider { return s.provider }

// Chunks returns the delta sequence. Indexes start at 0 and have no gaps;
// frames that fail to parse are skipped without consuming an index.
func (s *Stream) Chunks() iter.Seq[StreamChunk] {
	return func(yield func(StreamChunk) bool) {
		if s.started {
			return
		}
		s.started = true
		defer s.Close()

		dec := newTextDecoder()
		splitter := s.adapter.newSplitter(s.logger)
		buf := make([]byte, readBufferSize)
		index := 0
		start := time.Now()

		emit := func(frames []string) bool {
			for _, frame := range frames {
				content, err := s.adapter.extractDelta(frame)
				if err != nil {
					metrics.StreamFramesSkippedTotal.WithLabelValues(s.provider.String()).Inc()
					s.logger.Warn("skipping malformed stream frame",
						zap.String("frame", truncate(frame, 200)),
						zap.Error(err),
					)
					continue
				}
				if content == "" {
					continue
				}

				chunk := StreamChunk{
					Content:   content,
					Timestamp: s.now().UnixMilli(),
					Index:     index,
				}
				index++
				metrics.StreamChunksTotal.WithLabelValues(s.provider.String()).Inc()

				if !yield(chunk) {
					s.logger.Debug("stream abandoned by consumer", zap.Int("chunks", index))
					return false
				}
			}
			return true
		}

		for {
			n, readErr := s.body.Read(buf)
			if n > 0 {
				frames, done := splitter.push(dec.decode(buf[:n], false))
				if !emit(frames) {
					return
				}
				if done {
					s.logger.Info("stream received terminator",
						zap.Int("chunks", index),
						zap.Duration("duration", time.Since(start)),
					)
					return
				}
			}

			if readErr == nil {
				continue
			}

			if !errors.Is(readErr, io.EOF) {
				if ctxErr := s.ctx.Err(); ctxErr != nil {
					readErr = ctxErr
				}
				s.err = fmt.Errorf("llmclient: read stream: %w", readErr)
				s.logger.Warn("stream ended early",
					zap.Int("chunks", index),
					zap.Error(readErr),
				)
				return
			}

			// Normal end of data; drain decoder and splitter.
			frames, done := splitter.push(dec.decode(nil, true))
			if !emit(frames) || done {
				return
			}
			if !emit(splitter.flush()) {
				return
			}
			s.logger.Info("stream completed (EOF)",
				zap.Int("chunks", index),
				zap.Duration("duration", time.Since(start)),
			)
			return
		}
	}
}

// Err reports the read failure that ended iteration early, if any.
// Reaching end of data without a terminator is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the upstream body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
	return s.closeErr
}

// Collect drains the stream and returns the concatenated deltas.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for chunk := range s.Chunks() {
		sb.WriteString(chunk.Content)
	}
	return sb.String(), s.Err()
}
