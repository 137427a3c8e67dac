package llm

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// DefaultGeminiModel is used when the payload carries no "model".
const DefaultGeminiModel = "gemini-2.5-flash"

// geminiBodyFields are the only payload fields forwarded to Gemini.
var geminiBodyFields = []string{"contents", "generationConfig"}

type geminiAdapter struct{}

func (geminiAdapter) buildRequest(baseURL, apiKey string, payload json.RawMessage, stream bool) (*upstreamRequest, error) {
	model := DefaultGeminiModel
	if m := gjson.GetBytes(payload, "model"); m.Type == gjson.String && m.Str != "" {
		model = m.Str
	}

	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}

	body := []byte("{}")
	for _, field := range geminiBodyFields {
		v := gjson.GetBytes(payload, field)
		if !v.Exists() {
			continue
		}
		var err error
		body, err = sjson.SetRawBytes(body, field, []byte(v.Raw))
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", field, err)
		}
	}

	return &upstreamRequest{
		URL: fmt.Sprintf("%s/v1/models/%s:%s?key=%s",
			baseURL, url.PathEscape(model), method, url.QueryEscape(apiKey)),
		Header: jsonHeader(),
		Body:   body,
	}, nil
}

func (geminiAdapter) newSplitter(logger *zap.Logger) frameSplitter {
	return newJSONSplitter(logger)
}

func (geminiAdapter) extractDelta(frame string) (string, error) {
	return extractPath(frame, "candidates.0.content.parts.0.text")
}
