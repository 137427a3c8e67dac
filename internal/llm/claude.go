package llm

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ClaudeAPIVersion is sent as anthropic-version on every Claude request.
const ClaudeAPIVersion = "2023-06-01"

const claudeContentDelta = "content_block_delta"

type claudeAdapter struct{}

func (claudeAdapter) buildRequest(baseURL, apiKey string, payload json.RawMessage, stream bool) (*upstreamRequest, error) {
	body, err := withStreamFlag(payload, stream)
	if err != nil {
		return nil, fmt.Errorf("merge stream flag: %w", err)
	}

	h := jsonHeader()
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", ClaudeAPIVersion)

	return &upstreamRequest{
		URL:    baseURL + "/v1/messages",
		Header: h,
		Body:   body,
	}, nil
}

// Claude streams end when the connection closes; there is no sentinel.
func (claudeAdapter) newSplitter(logger *zap.Logger) frameSplitter {
	return newSSESplitter("", logger)
}

// Only content_block_delta events carry text. message_start, ping,
// content_block_start/stop and message_delta/stop yield nothing.
func (claudeAdapter) extractDelta(frame string) (string, error) {
	if !gjson.Valid(frame) {
		return "", errMalformedFrame
	}
	if gjson.Get(frame, "type").String() != claudeContentDelta {
		return "", nil
	}
	return extractPath(frame, "delta.text")
}
