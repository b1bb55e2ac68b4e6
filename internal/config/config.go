package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Payload styles understood by the upstream invoker.
const (
	StyleChat = "chat"
	StyleText = "text"
)

const redactedSecret = "[redacted]"

// Config represents the application configuration parsed from YAML and the environment.
type Config struct {
	Server      ServerConfig              `yaml:"server"`
	Gateway     GatewayConfig             `yaml:"gateway"`
	Credentials CredentialsConfig         `yaml:"credentials"`
	Deployment  DeploymentConfig          `yaml:"deployment"`
	Log         LogConfig                 `yaml:"log"`
	Providers   map[string]ProviderConfig `yaml:"providers" validate:"required,dive"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port             int           `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	Route            string        `yaml:"route" env:"CHAT_ROUTE" validate:"required,startswith=/"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gt=0"`
	CredentialHeader string        `yaml:"credential_header" validate:"required"`
}

// GatewayConfig controls the chat pipeline.
type GatewayConfig struct {
	Provider         string        `yaml:"provider" env:"GATEWAY_PROVIDER" validate:"required"`
	MaxMessageLength int           `yaml:"max_message_length" env:"MAX_MESSAGE_LENGTH" validate:"min=1"`
	Retry            RetryConfig   `yaml:"retry"`
	Replies          RepliesConfig `yaml:"replies"`
}

// RetryConfig bounds how long a transient upstream condition is waited out.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" validate:"min=1,max=10"`
	Delay       time.Duration `yaml:"delay" env:"RETRY_DELAY" validate:"gte=0"`
}

// RepliesConfig holds the canned replies returned when no generated text is available.
type RepliesConfig struct {
	MissingCredential string `yaml:"missing_credential" validate:"required"`
	UpstreamFailure   string `yaml:"upstream_failure" validate:"required"`
	Unrecognized      string `yaml:"unrecognized" validate:"required"`
	InternalError     string `yaml:"internal_error" validate:"required"`
}

// CredentialsConfig carries the deployment-configured upstream secrets.
type CredentialsConfig struct {
	Primary   string `yaml:"primary" env:"OPENROUTER_API_KEY"`
	Secondary string `yaml:"secondary" env:"NEXT_PUBLIC_OPENROUTER_API_KEY"`
}

// DeploymentConfig describes where the gateway runs. Only SiteURL affects upstream calls.
type DeploymentConfig struct {
	SiteURL string `yaml:"site_url" env:"SITE_URL" validate:"omitempty,url"`
	Env     string `yaml:"env" env:"VERCEL_ENV"`
	Hosted  bool   `yaml:"hosted" env:"VERCEL"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=json text"`
}

// ProviderConfig describes one upstream text-generation endpoint.
type ProviderConfig struct {
	Style              string        `yaml:"style" validate:"oneof=chat text"`
	BaseURL            string        `yaml:"base_url" validate:"required,url"`
	Path               string        `yaml:"path"`
	Model              string        `yaml:"model" validate:"required"`
	SystemPrompt       string        `yaml:"system_prompt"`
	MaxTokens          int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature        *float64      `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	Headers            Headers       `yaml:"headers"`
	RefererHeader      string        `yaml:"referer_header"`
	NonJSONIsTransient bool          `yaml:"non_json_is_transient"`
	Timeout            time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

var validate = validator.New()

// Default returns the built-in configuration. It is complete except for credentials.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:             8080,
			Route:            "/api/chat",
			RequestTimeout:   30 * time.Second,
			CredentialHeader: "x-openrouter-key",
		},
		Gateway: GatewayConfig{
			Provider:         "openrouter",
			MaxMessageLength: 2000,
			Retry: RetryConfig{
				MaxAttempts: 3,
				Delay:       2 * time.Second,
			},
			Replies: RepliesConfig{
				MissingCredential: "Server has no API key. For a quick test, send it in header 'x-openrouter-key' (temporary).",
				UpstreamFailure:   "I'm having trouble connecting to the AI right now. Please try again in a moment. 🔄",
				Unrecognized:      "I couldn't generate a response. Please try again.",
				InternalError:     "Oops, something went wrong on the server. Please try again. 😅",
			},
		},
		Deployment: DeploymentConfig{
			SiteURL: "https://chatbot-integrated-website.vercel.app",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Style:         StyleChat,
				BaseURL:       "https://openrouter.ai/api/v1",
				Path:          "/chat/completions",
				Model:         "google/gemma-2-9b-it:free",
				SystemPrompt:  "You are Apprentice, a helpful, concise AI assistant.",
				MaxTokens:     180,
				RefererHeader: "HTTP-Referer",
				Headers:       Headers{"X-Title": "Apprentice Chatbot"},
			},
			"huggingface": {
				Style:              StyleText,
				BaseURL:            "https://api-inference.huggingface.co/models",
				Model:              "microsoft/DialoGPT-medium",
				MaxTokens:          150,
				NonJSONIsTransient: true,
			},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment,
// in that order of precedence, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Credentials.Primary = strings.TrimSpace(c.Credentials.Primary)
	c.Credentials.Secondary = strings.TrimSpace(c.Credentials.Secondary)
	c.Server.CredentialHeader = strings.ToLower(strings.TrimSpace(c.Server.CredentialHeader))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	for name, p := range c.Providers {
		p.Style = strings.ToLower(strings.TrimSpace(p.Style))
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		c.Providers[name] = p
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config %s: failed %q check (value %v)", first.Namespace(), first.Tag(), redactValue(first))
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if _, ok := c.Providers[c.Gateway.Provider]; !ok {
		return fmt.Errorf("gateway.provider %q does not name a configured provider", c.Gateway.Provider)
	}

	for name, provider := range c.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if !isCanonicalHTTPHeader(c.Server.CredentialHeader) {
		return fmt.Errorf("server.credential_header %q is not a valid HTTP header name", c.Server.CredentialHeader)
	}

	return nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.Credentials.Primary != "" {
		out.Credentials.Primary = redactedSecret
	}
	if out.Credentials.Secondary != "" {
		out.Credentials.Secondary = redactedSecret
	}
	return out
}

// Runtime names the hosting runtime for diagnostics.
func (d DeploymentConfig) Runtime() string {
	if d.Hosted {
		return "Vercel"
	}
	return "Local"
}

// EnvName returns the deployment environment or "unknown".
func (d DeploymentConfig) EnvName() string {
	if strings.TrimSpace(d.Env) == "" {
		return "unknown"
	}
	return d.Env
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("provider name must not be empty")
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	if provider.RefererHeader != "" && !isCanonicalHTTPHeader(provider.RefererHeader) {
		return fmt.Errorf("provider %s: referer_header %q is not a valid canonical HTTP header", name, provider.RefererHeader)
	}

	if provider.Path != "" && !strings.HasPrefix(provider.Path, "/") {
		return fmt.Errorf("provider %s: path %q must start with /", name, provider.Path)
	}

	return nil
}

func redactValue(fe validator.FieldError) any {
	if strings.HasPrefix(fe.Namespace(), "Config.Credentials") {
		return redactedSecret
	}
	return fe.Value()
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
