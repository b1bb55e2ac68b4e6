package models

import "time"

// CredentialSource tags where a resolved upstream credential came from.
type CredentialSource string

// Credential sources in resolution priority order.
const (
	SourceEnvPrimary    CredentialSource = "env:primary"
	SourceEnvSecondary  CredentialSource = "env:secondary"
	SourceRequestHeader CredentialSource = "header"
	SourceRequestBody   CredentialSource = "body.apiKey"
	SourceNone          CredentialSource = "none"
)

// Credential is the single token selected for one upstream call.
// The value must never be logged; log Source instead.
type Credential struct {
	Value  string
	Source CredentialSource
}

// Present reports whether a usable token was found.
func (c Credential) Present() bool {
	return c.Source != SourceNone && c.Value != ""
}

// String hides the token so a Credential can be passed to loggers safely.
func (c Credential) String() string {
	return string(c.Source)
}

// OutcomeKind is the terminal state of one invocation.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeCredentialMissing
	OutcomeUpstreamFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeCredentialMissing:
		return "credential_missing"
	case OutcomeUpstreamFailed:
		return "upstream_failed"
	default:
		return "unknown"
	}
}

// Outcome is what the invoker hands to the normalizer. It is never an error.
type Outcome struct {
	Kind        OutcomeKind
	Provider    string
	Attempts    int
	StatusCode  int
	ContentType string
	Body        []byte
	Elapsed     time.Duration

	// Err carries the last transport or classification error for logging only.
	Err error
}

// Reply is the normalized text returned to the caller.
type Reply struct {
	Text string

	// Fallback is set when Text is a canned message rather than generated output.
	Fallback bool
}
