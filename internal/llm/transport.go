package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"llm-playground/internal/metrics"
)

// Call issues one playground request. The shape of the result follows
// req.Stream: a Stream on a 2xx streaming exchange, an APIResponse otherwise.
func (c *client) Call(parentCtx context.Context, req *Request) Result {
	if req == nil {
		return Result{Response: failure("llmclient: request is nil", 0)}
	}
	if err := req.Validate(); err != nil {
		return Result{Response: failure("llmclient: invalid request: "+err.Error(), 0)}
	}

	a, _ := adapterFor(req.Provider)
	mode := "complete"
	timeout := c.cfg.UpstreamTimeout
	if req.Stream {
		mode = "stream"
		timeout = c.cfg.StreamTimeout
	}

	logger := c.logger.With(
		zap.String("provider", req.Provider.String()),
		zap.String("mode", mode),
	)

	baseURL := strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	up, err := a.buildRequest(baseURL, req.APIKey, req.Payload, req.Stream)
	if err != nil {
		return Result{Response: failure("llmclient: build request: "+err.Error(), 0)}
	}

	logger.Debug("llm request starting",
		zap.String("url", redactURL(up.URL)),
		zap.Int("body_bytes", len(up.Body)),
	)

	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	start := time.Now()

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, up.URL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llmclient: build HTTP request: %w", redactErr(err))
		}
		httpReq.Header = up.Header.Clone()
		resp, err := c.httpClient.Do(httpReq)
		return resp, redactErr(err)
	}

	resp, err := c.doWithRetry(ctx, up.Body, doOnce)
	metrics.UpstreamLatencySeconds.WithLabelValues(req.Provider.String(), mode).
		Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		metrics.UpstreamRequestsTotal.WithLabelValues(req.Provider.String(), mode, "error").Inc()
		logger.Error("llm request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return Result{Response: failure(err.Error(), 0)}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(req.Provider.String(), mode, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		return Result{Response: c.upstreamFailure(logger, resp)}
	}

	if req.Stream {
		logger.Debug("llm stream opened", zap.Int("status", resp.StatusCode))
		return Result{Stream: newStream(ctx, cancel, req.Provider, a, resp.Body, logger.Named("stream"), c.cfg.Now)}
	}

	defer cancel()
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
	if err != nil {
		logger.Error("llm response read failed", zap.Error(err))
		return Result{Response: failure("llmclient: read upstream response: "+err.Error(), 0)}
	}
	if !gjson.ValidBytes(data) {
		logger.Error("llm response is not JSON",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(data), 200)),
		)
		return Result{Response: failure("llmclient: decode upstream response: invalid JSON", 0)}
	}

	logger.Info("llm request completed",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	return Result{Response: &APIResponse{Success: true, Data: json.RawMessage(data)}}
}

// upstreamFailure maps a non-2xx response; the raw body text becomes the error.
func (c *client) upstreamFailure(logger *zap.Logger, resp *http.Response) *APIResponse {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))

	msg := string(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	logger.Warn("llm upstream error",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(msg, 200)),
	)
	return failure(msg, resp.StatusCode)
}

// redactURL hides the Gemini query-string key before a URL reaches logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("key") {
		return raw
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

func redactErr(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = redactURL(urlErr.URL)
	}
	return err
}
