// Package provision obtains a call identifier from the remote orchestration
// service ahead of opening the media socket.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxwire/voxwire/pkg/errorsx"
)

// Defaults applied to unset call options so downstream components always see
// a fully populated record.
const (
	DefaultPrompt      = "You are a helpful voice assistant. Keep your answers short and conversational."
	DefaultSTTProvider = "deepgram"
	DefaultTTSProvider = "elevenlabs"
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4"
	DefaultSTTModel    = "nova-2"
	DefaultTTSModel    = "eleven_multilingual_v2"
	DefaultLanguage    = "en-US"
)

// Options is the create-session request body. Every field is optional; the
// provider and model identifiers are opaque pass-through strings for the
// orchestration service.
type Options struct {
	Prompt      string `json:"prompt" mapstructure:"prompt"`
	STTProvider string `json:"sttProvider" mapstructure:"stt_provider"`
	TTSProvider string `json:"ttsProvider" mapstructure:"tts_provider"`
	LLMProvider string `json:"llmProvider" mapstructure:"llm_provider"`
	LLMModel    string `json:"llmModel" mapstructure:"llm_model"`
	STTModel    string `json:"sttModel" mapstructure:"stt_model"`
	TTSModel    string `json:"ttsModel" mapstructure:"tts_model"`
	Language    string `json:"language" mapstructure:"language"`
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Prompt) == "" {
		o.Prompt = DefaultPrompt
	}
	if o.STTProvider == "" {
		o.STTProvider = DefaultSTTProvider
	}
	if o.TTSProvider == "" {
		o.TTSProvider = DefaultTTSProvider
	}
	if o.LLMProvider == "" {
		o.LLMProvider = DefaultLLMProvider
	}
	if o.LLMModel == "" {
		o.LLMModel = DefaultLLMModel
	}
	if o.STTModel == "" {
		o.STTModel = DefaultSTTModel
	}
	if o.TTSModel == "" {
		o.TTSModel = DefaultTTSModel
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

// Created is the orchestration service's response to a create-session call.
type Created struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues create-session requests. Stateless across calls: one
// outbound HTTP request per CreateSession and nothing retained.
type Client struct {
	cfg   Config
	httpc httpDoer
	log   *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		log:   log,
	}
}

// CreateSession requests a new call from the orchestration service. Unset
// options receive the documented defaults before the request is built. A
// non-2xx response or a network failure is returned as a session_create
// error; no retry happens at this layer.
func (c *Client) CreateSession(ctx context.Context, opts Options) (Created, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return Created{}, errorsx.Wrap(errors.New("api base url required"), errorsx.ReasonSessionCreate)
	}
	opts = opts.withDefaults()
	body, err := json.Marshal(opts)
	if err != nil {
		return Created{}, errorsx.Wrap(err, errorsx.ReasonSessionCreate)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Created{}, errorsx.Wrap(err, errorsx.ReasonSessionCreate)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Error("session_create_request_failed", "url", url, "error", err.Error())
		return Created{}, errorsx.Wrap(err, errorsx.ReasonSessionCreate)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error("session_create_rejected", "url", url, "status", resp.StatusCode)
		return Created{}, errorsx.Wrap(
			fmt.Errorf("create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			errorsx.ReasonSessionCreate)
	}

	var created Created
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Created{}, errorsx.Wrap(fmt.Errorf("decode create-session response: %w", err), errorsx.ReasonSessionCreate)
	}
	if strings.TrimSpace(created.CallID) == "" {
		return Created{}, errorsx.Wrap(errors.New("create-session response missing callId"), errorsx.ReasonSessionCreate)
	}
	c.log.Info("session_created", "call_id", created.CallID, "status", created.Status)
	return created, nil
}
