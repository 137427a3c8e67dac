package llm

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// errMalformedFrame marks a frame whose payload is not valid JSON.
var errMalformedFrame = errors.New("malformed frame")

// upstreamRequest is the provider-shaped HTTP exchange for one call.
type upstreamRequest struct {
	URL    string
	Header http.Header
	Body   []byte
}

// adapter is the per-provider capability set. All provider differences
// live behind it; call sites only look adapters up by Provider.
type adapter interface {
	// buildRequest shapes URL, headers and body. baseURL has no trailing slash.
	buildRequest(baseURL, apiKey string, payload json.RawMessage, stream bool) (*upstreamRequest, error)

	// newSplitter returns fresh framing state for one stream.
	newSplitter(logger *zap.Logger) frameSplitter

	// extractDelta returns the text carried by frame, or "" when it has none.
	// It fails only with errMalformedFrame.
	extractDelta(frame string) (string, error)
}

var adapters = map[Provider]adapter{
	ProviderOpenAI: openAIAdapter{},
	ProviderClaude: claudeAdapter{},
	ProviderGemini: geminiAdapter{},
}

func adapterFor(p Provider) (adapter, bool) {
	a, ok := adapters[p]
	return a, ok
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

// withStreamFlag merges "stream": stream into the caller's payload.
func withStreamFlag(payload json.RawMessage, stream bool) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return sjson.SetBytes(payload, "stream", stream)
}

func isJSONObject(b []byte) bool {
	return gjson.ValidBytes(b) && gjson.ParseBytes(b).IsObject()
}

// extractPath reads a string at path from a JSON frame.
func extractPath(frame, path string) (string, error) {
	if !gjson.Valid(frame) {
		return "", errMalformedFrame
	}
	r := gjson.Get(frame, path)
	if r.Type != gjson.String {
		return "", nil
	}
	return r.Str, nil
}
