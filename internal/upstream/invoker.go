// Package upstream performs the outbound provider call and waits out transient
// "model not ready" conditions with a fixed delay.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"apprentice-gateway/internal/models"
	"apprentice-gateway/internal/provider"
)

const (
	maxResponseBytes = 1 << 20 // 1 MiB
	logBodyLimit     = 300
)

var (
	// ErrModelLoading marks a transient upstream condition worth retrying.
	ErrModelLoading = errors.New("upstream model not ready")
	// ErrUpstreamStatus marks a non-retryable upstream HTTP failure.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrNetwork marks a transport-level failure.
	ErrNetwork = errors.New("upstream network failure")
)

// Endpoint is the single-call surface the invoker drives.
type Endpoint interface {
	Name() string
	NonJSONIsTransient() bool
	Send(ctx context.Context, call provider.Call) (*http.Response, error)
}

// Recorder receives per-attempt telemetry.
type Recorder interface {
	ObserveAttempt(provider, result string, elapsed time.Duration)
	ObserveRetry(provider string)
}

// Policy bounds retries.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Invoker issues upstream calls for one endpoint.
type Invoker struct {
	endpoint Endpoint
	policy   Policy
	logger   *slog.Logger
	recorder Recorder
	newTimer func() backoff.Timer
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(i *Invoker) {
		if r != nil {
			i.recorder = r
		}
	}
}

// WithTimer replaces the timer used between attempts.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(i *Invoker) {
		i.newTimer = newTimer
	}
}

// New constructs an Invoker. MaxAttempts below one is raised to one.
func New(endpoint Endpoint, policy Policy, logger *slog.Logger, opts ...Option) *Invoker {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	inv := &Invoker{
		endpoint: endpoint,
		policy:   policy,
		logger:   logger,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Provider names the endpoint this invoker drives.
func (i *Invoker) Provider() string {
	return i.endpoint.Name()
}

type attemptResult struct {
	status      int
	contentType string
	body        []byte
}

// Invoke runs the attempt loop and always returns an Outcome. A missing credential
// short-circuits without touching the network. Cancelling ctx abandons the in-flight
// call and any pending delay.
func (i *Invoker) Invoke(ctx context.Context, call provider.Call) models.Outcome {
	name := i.endpoint.Name()
	if !call.Credential.Present() {
		i.logger.Error("no upstream credential available at runtime", slog.String("provider", name))
		return models.Outcome{Kind: models.OutcomeCredentialMissing, Provider: name}
	}

	var (
		last     attemptResult
		attempts int
		start    = time.Now()
	)

	operation := func() error {
		attempts++
		res, err := i.attempt(ctx, call)
		last = res
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrModelLoading) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		i.recorder.ObserveRetry(name)
		i.logger.Warn("upstream not ready, retrying",
			slog.String("provider", name),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", i.policy.MaxAttempts),
			slog.Int("status", last.status),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	var timer backoff.Timer
	if i.newTimer != nil {
		timer = i.newTimer()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(i.policy.Delay), uint64(i.policy.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer)

	outcome := models.Outcome{
		Provider:    name,
		Attempts:    attempts,
		StatusCode:  last.status,
		ContentType: last.contentType,
		Body:        last.body,
		Elapsed:     time.Since(start),
	}

	if err == nil {
		outcome.Kind = models.OutcomeSucceeded
		i.logger.Debug("upstream call succeeded",
			slog.String("provider", name),
			slog.Int("attempts", attempts),
			slog.Duration("elapsed", outcome.Elapsed))
		return outcome
	}

	outcome.Kind = models.OutcomeUpstreamFailed
	outcome.Err = err

	if ctxErr := ctx.Err(); ctxErr != nil {
		i.logger.Warn("upstream call abandoned",
			slog.String("provider", name),
			slog.Int("attempts", attempts),
			slog.Any("error", ctxErr))
		return outcome
	}

	i.logger.Error("upstream API error",
		slog.String("provider", name),
		slog.Int("attempts", attempts),
		slog.Int("status", last.status),
		slog.String("body", snippet(last.body)),
		slog.Any("error", err))
	return outcome
}

func (i *Invoker) attempt(ctx context.Context, call provider.Call) (attemptResult, error) {
	name := i.endpoint.Name()
	start := time.Now()

	resp, err := i.endpoint.Send(ctx, call)
	if err != nil {
		i.recorder.ObserveAttempt(name, "network_error", time.Since(start))
		return attemptResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		i.recorder.ObserveAttempt(name, "network_error", time.Since(start))
		return attemptResult{status: resp.StatusCode}, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	res := attemptResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}

	class := Classify(resp.StatusCode, body, i.endpoint.NonJSONIsTransient())
	i.recorder.ObserveAttempt(name, class.String(), time.Since(start))

	switch class {
	case ClassSuccess:
		return res, nil
	case ClassTransient:
		return res, fmt.Errorf("%w: status %d", ErrModelLoading, resp.StatusCode)
	default:
		return res, fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}
}

func snippet(body []byte) string {
	if len(body) > logBodyLimit {
		return string(body[:logBodyLimit])
	}
	return string(body)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (nopRecorder) ObserveRetry(string)                          {}
