package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llm-playground/internal/config"
	"llm-playground/internal/llm"
	"llm-playground/pkg/logging"
)

// defaultBaseURLs are the public endpoints used when --base-url is omitted.
var defaultBaseURLs = map[llm.Provider]string{
	llm.ProviderOpenAI: "https://api.openai.com",
	llm.ProviderClaude: "https://api.anthropic.com",
	llm.ProviderGemini: "https://generativelanguage.googleapis.com",
}

// apiKeyEnv names the variable read when --api-key is omitted.
var apiKeyEnv = map[llm.Provider]string{
	llm.ProviderOpenAI: "OPENAI_API_KEY",
	llm.ProviderClaude: "ANTHROPIC_API_KEY",
	llm.ProviderGemini: "GEMINI_API_KEY",
}

type callOptions struct {
	provider string
	baseURL  string
	apiKey   string
	payload  string
	stream   bool
}

func newCallCmd(root *rootOptions) *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Send one payload to a provider and print the result",
		Example: `  playground call --provider openai --payload '{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}' --stream
  playground call --provider gemini --payload @request.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "provider: openai, claude or gemini")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "API base URL (default: the provider's public endpoint)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key (default: $OPENAI_API_KEY, $ANTHROPIC_API_KEY or $GEMINI_API_KEY)")
	cmd.Flags().StringVarP(&opts.payload, "payload", "d", "", "request body: JSON, @file, or - for stdin")
	cmd.Flags().BoolVarP(&opts.stream, "stream", "s", false, "stream the response")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func runCall(cmd *cobra.Command, root *rootOptions, opts *callOptions) error {
	provider, err := llm.ParseProvider(opts.provider)
	if err != nil {
		return err
	}

	payload, err := readPayload(opts.payload, cmd.InOrStdin())
	if err != nil {
		return err
	}

	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[provider]
	}
	apiKey := opts.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv[provider])
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set %s", apiKeyEnv[provider])
	}

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if root.verbose {
		if logger, err = logging.NewLogger(logging.Options{Env: "dev", Level: "debug"}); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	client, err := llm.NewClient(cfg.LLM(), logger)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintln(stderr, keyStyle.Render("provider")+provider.String())
	fmt.Fprintln(stderr, keyStyle.Render("endpoint")+baseURL)
	fmt.Fprintln(stderr)

	start := time.Now()
	res := client.Call(cmd.Context(), &llm.Request{
		Provider: provider,
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Payload:  payload,
		Stream:   opts.stream,
	})

	if res.Stream != nil {
		return printStream(cmd.OutOrStdout(), stderr, res.Stream, start)
	}
	return printResponse(cmd.OutOrStdout(), stderr, res.Response, start)
}

// readPayload resolves the --payload forms: literal JSON, @file, or "-".
func readPayload(spec string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch {
	case spec == "":
		return nil, nil
	case spec == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		data = b
	case strings.HasPrefix(spec, "@"):
		b, err := os.ReadFile(spec[1:])
		if err != nil {
			return nil, fmt.Errorf("reading payload file: %w", err)
		}
		data = b
	default:
		data = []byte(spec)
	}

	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printStream(out, stderr io.Writer, stream *llm.Stream, start time.Time) error {
	chunks := 0
	var first time.Duration
	for chunk := range stream.Chunks() {
		if chunks == 0 {
			first = time.Since(start)
		}
		chunks++
		fmt.Fprint(out, chunk.Content)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(stderr)

	if err := stream.Err(); err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("✗ stream interrupted"))
		return err
	}

	fmt.Fprintln(stderr, successStyle.Render("✓ done")+"  "+summaryLine(
		"chunks", strconv.Itoa(chunks),
		"first delta", first.Round(time.Millisecond).String(),
		"total", time.Since(start).Round(time.Millisecond).String(),
	))
	return nil
}

func printResponse(out, stderr io.Writer, resp *llm.APIResponse, start time.Time) error {
	if !resp.Success {
		status := "network"
		if resp.StatusCode != 0 {
			status = strconv.Itoa(resp.StatusCode)
		}
		fmt.Fprintln(stderr, errorStyle.Render("✗ failed")+"  "+summaryLine("status", status))
		fmt.Fprintln(out, resp.Error)
		return fmt.Errorf("call failed (%s)", status)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(resp.Data)
	}
	fmt.Fprintln(out, pretty.String())
	fmt.Fprintln(stderr, successStyle.Render("✓ done")+"  "+summaryLine(
		"total", time.Since(start).Round(time.Millisecond).String(),
	))
	return nil
}
