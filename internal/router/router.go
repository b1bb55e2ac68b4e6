package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/credential"
	"apprentice-gateway/internal/models"
	"apprentice-gateway/internal/normalize"
	"apprentice-gateway/internal/provider"
	"apprentice-gateway/internal/translator"
	"apprentice-gateway/internal/upstream"
)

// Recorder receives pipeline telemetry.
type Recorder interface {
	upstream.Recorder
	ObserveReply(outcome string)
	ObserveCredentialSource(source string)
}

// Request is one inbound chat request as seen by the pipeline.
type Request struct {
	Body             translator.InboundBody
	CredentialHeader string
	Origin           string
}

// Router runs validate → resolve → invoke → normalize for the active provider.
type Router struct {
	resolver      *credential.Resolver
	invoker       *upstream.Invoker
	normalizer    *normalize.Normalizer
	maxMessageLen int
	timeout       time.Duration
	siteURL       string
	deployment    config.DeploymentConfig
	internalReply string
	logger        *slog.Logger
	recorder      Recorder
}

// New constructs a router bound to the provider named by cfg.Gateway.Provider.
// A nil recorder disables telemetry.
func New(cfg config.Config, registry *provider.Registry, logger *slog.Logger, recorder Recorder, opts ...upstream.Option) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	profile, err := registry.Lookup(cfg.Gateway.Provider)
	if err != nil {
		return nil, fmt.Errorf("select active provider: %w", err)
	}

	invokerOpts := append([]upstream.Option{upstream.WithRecorder(recorder)}, opts...)
	invoker := upstream.New(profile, upstream.Policy{
		MaxAttempts: cfg.Gateway.Retry.MaxAttempts,
		Delay:       cfg.Gateway.Retry.Delay,
	}, logger, invokerOpts...)

	replies := cfg.Gateway.Replies
	normalizer := normalize.New(normalize.Replies{
		MissingCredential: replies.MissingCredential,
		UpstreamFailure:   replies.UpstreamFailure,
		Unrecognized:      replies.Unrecognized,
	}, normalize.ExtractorsFor(profile.Style())...)

	return &Router{
		resolver:      credential.NewResolver(cfg.Credentials, logger),
		invoker:       invoker,
		normalizer:    normalizer,
		maxMessageLen: cfg.Gateway.MaxMessageLength,
		timeout:       cfg.Server.RequestTimeout,
		siteURL:       cfg.Deployment.SiteURL,
		deployment:    cfg.Deployment,
		internalReply: replies.InternalError,
		logger:        logger,
		recorder:      recorder,
	}, nil
}

// Provider names the active upstream profile.
func (r *Router) Provider() string {
	return r.invoker.Provider()
}

// HasDeploymentSecret reports whether a server-side credential is configured.
func (r *Router) HasDeploymentSecret() bool {
	return r.resolver.HasDeploymentSecret()
}

// Reply produces the reply for one request. The only error it returns is
// translator.ErrEmptyMessage; every upstream problem becomes a fallback reply.
func (r *Router) Reply(ctx context.Context, req Request) (reply models.Reply, err error) {
	message, err := translator.ValidateMessage(req.Body.Message, r.maxMessageLen)
	if err != nil {
		return models.Reply{}, err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("chat pipeline panicked", slog.Any("panic", p))
			r.recorder.ObserveReply("internal_error")
			reply, err = models.Reply{Text: r.internalReply, Fallback: true}, nil
		}
	}()

	cred := r.resolver.Resolve(req.CredentialHeader, req.Body.APIKeyOverride())
	r.recorder.ObserveCredentialSource(string(cred.Source))
	r.logger.Info("runtime",
		slog.String("runtime", r.deployment.Runtime()),
		slog.String("deploy_env", r.deployment.EnvName()))

	referer := req.Origin
	if referer == "" {
		referer = r.siteURL
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outcome := r.invoker.Invoke(ctx, provider.Call{
		Message:    message,
		Credential: cred,
		Referer:    referer,
	})

	reply = r.normalizer.Normalize(outcome, message)
	r.recorder.ObserveReply(outcome.Kind.String())

	if outcome.Kind == models.OutcomeSucceeded && reply.Fallback {
		r.logger.Warn("unrecognized upstream response shape",
			slog.String("provider", outcome.Provider),
			slog.String("content_type", outcome.ContentType),
			slog.Int("body_bytes", len(outcome.Body)))
	}

	return reply, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (nopRecorder) ObserveRetry(string)                          {}
func (nopRecorder) ObserveReply(string)                          {}
func (nopRecorder) ObserveCredentialSource(string)               {}
