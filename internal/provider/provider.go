package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/models"
	"apprentice-gateway/internal/translator"
)

const (
	contentTypeJSON   = "application/json"
	userAgent         = "apprentice-gateway/0.1"
	defaultChatPath   = "/chat/completions"
	defaultRefererKey = "HTTP-Referer"
)

// Call is everything needed to render one upstream request.
type Call struct {
	Message    string
	Credential models.Credential
	Referer    string
}

// Profile is one upstream endpoint: where to send, what shape to send, and
// how to read failures. It holds no per-request state.
type Profile struct {
	name               string
	style              string
	endpoint           string
	params             translator.GenerationParams
	headers            map[string]string
	refererHeader      string
	nonJSONIsTransient bool
	client             *http.Client
}

// New creates a profile from its configuration.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Profile, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	var endpoint string
	switch cfg.Style {
	case config.StyleChat:
		path := cfg.Path
		if path == "" {
			path = defaultChatPath
		}
		endpoint = baseURL + path
	case config.StyleText:
		if cfg.Path != "" {
			endpoint = baseURL + cfg.Path
		} else {
			endpoint = baseURL + "/" + strings.TrimLeft(cfg.Model, "/")
		}
	default:
		return nil, fmt.Errorf("provider %q: unsupported style %q", name, cfg.Style)
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	refererHeader := cfg.RefererHeader
	if refererHeader == "" && cfg.Style == config.StyleChat {
		refererHeader = defaultRefererKey
	}

	return &Profile{
		name:     name,
		style:    cfg.Style,
		endpoint: endpoint,
		params: translator.GenerationParams{
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
		},
		headers:            headers,
		refererHeader:      refererHeader,
		nonJSONIsTransient: cfg.NonJSONIsTransient,
		client:             client,
	}, nil
}

func (p *Profile) Name() string {
	return p.name
}

func (p *Profile) Style() string {
	return p.style
}

func (p *Profile) Endpoint() string {
	return p.endpoint
}

// NonJSONIsTransient reports whether a non-JSON error body should be read as
// "model still loading".
func (p *Profile) NonJSONIsTransient() bool {
	return p.nonJSONIsTransient
}

// Send performs exactly one upstream call. The caller owns the response body.
func (p *Profile) Send(ctx context.Context, call Call) (*http.Response, error) {
	req, err := p.NewRequest(ctx, call)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	return resp, nil
}

// NewRequest renders the upstream HTTP request for a call.
func (p *Profile) NewRequest(ctx context.Context, call Call) (*http.Request, error) {
	payload, err := translator.BuildPayload(p.style, p.params, call.Message)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+call.Credential.Value)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	if p.refererHeader != "" && call.Referer != "" {
		req.Header.Set(p.refererHeader, call.Referer)
	}

	return req, nil
}
