// Package credential selects the upstream API key for a request.
package credential

import (
	"log/slog"
	"strings"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/models"
)

// Candidate is one possible source of a credential.
type Candidate struct {
	Source models.CredentialSource
	Value  string
}

// Resolve returns the first candidate whose trimmed value is non-empty.
// When none qualifies it returns a credential tagged models.SourceNone.
func Resolve(candidates ...Candidate) models.Credential {
	for _, c := range candidates {
		if v := strings.TrimSpace(c.Value); v != "" {
			return models.Credential{Value: v, Source: c.Source}
		}
	}
	return models.Credential{Source: models.SourceNone}
}

// Resolver applies the fixed priority order: deployment secrets first,
// then per-request overrides.
type Resolver struct {
	primary   string
	secondary string
	logger    *slog.Logger
}

// NewResolver captures the deployment secrets once at construction.
func NewResolver(cfg config.CredentialsConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		logger:    logger,
	}
}

// Resolve picks the credential for a request given its header and body overrides.
func (r *Resolver) Resolve(header, body string) models.Credential {
	cred := Resolve(
		Candidate{Source: models.SourceEnvPrimary, Value: r.primary},
		Candidate{Source: models.SourceEnvSecondary, Value: r.secondary},
		Candidate{Source: models.SourceRequestHeader, Value: header},
		Candidate{Source: models.SourceRequestBody, Value: body},
	)
	r.logger.Info("upstream key source", slog.String("source", string(cred.Source)))
	return cred
}

// HasDeploymentSecret reports whether requests can succeed without an override.
func (r *Resolver) HasDeploymentSecret() bool {
	return strings.TrimSpace(r.primary) != "" || strings.TrimSpace(r.secondary) != ""
}
