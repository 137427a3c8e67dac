package llm

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// doneSentinel ends an OpenAI stream; it is never emitted as a frame.
const doneSentinel = "[DONE]"

type openAIAdapter struct{}

func (openAIAdapter) buildRequest(baseURL, apiKey string, payload json.RawMessage, stream bool) (*upstreamRequest, error) {
	body, err := withStreamFlag(payload, stream)
	if err != nil {
		return nil, fmt.Errorf("merge stream flag: %w", err)
	}

	h := jsonHeader()
	h.Set("Authorization", "Bearer "+apiKey)

	return &upstreamRequest{
		URL:    baseURL + "/v1/chat/completions",
		Header: h,
		Body:   body,
	}, nil
}

func (openAIAdapter) newSplitter(logger *zap.Logger) frameSplitter {
	return newSSESplitter(doneSentinel, logger)
}

func (openAIAdapter) extractDelta(frame string) (string, error) {
	return extractPath(frame, "choices.0.delta.content")
}
