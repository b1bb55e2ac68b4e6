// Package normalize turns an upstream outcome into the reply shown to the user.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"apprentice-gateway/internal/models"
)

// Replies are the canned texts used when no generated text is available.
type Replies struct {
	MissingCredential string
	UpstreamFailure   string
	Unrecognized      string
}

// Normalizer applies an ordered extractor chain. It never fails.
type Normalizer struct {
	extractors []Extractor
	replies    Replies
}

// New constructs a Normalizer. With no extractors the default chain is used.
func New(replies Replies, extractors ...Extractor) *Normalizer {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	return &Normalizer{
		extractors: extractors,
		replies:    replies,
	}
}

// Normalize returns a non-empty reply for any outcome. message is the text that was
// sent upstream and is used to strip an echoed prompt.
func (n *Normalizer) Normalize(outcome models.Outcome, message string) models.Reply {
	switch outcome.Kind {
	case models.OutcomeSucceeded:
	case models.OutcomeCredentialMissing:
		return n.fallback(n.replies.MissingCredential)
	default:
		return n.fallback(n.replies.UpstreamFailure)
	}

	text, ok := n.Extract(outcome.Body)
	if !ok {
		return n.fallback(n.replies.Unrecognized)
	}

	text = StripEcho(text, message)
	if text == "" {
		return n.fallback(n.replies.Unrecognized)
	}
	return models.Reply{Text: text}
}

// Extract runs the chain and returns the first non-empty match.
func (n *Normalizer) Extract(body []byte) (string, bool) {
	for _, extract := range n.extractors {
		if text, ok := extract(body); ok {
			return text, true
		}
	}
	return "", false
}

// StripEcho removes message from the front of text when text repeats it as a whole.
// Some raw text-generation models return the prompt followed by the continuation.
// A prefix that ends mid-word ("hello" in "helloween") is not an echo.
func StripEcho(text, message string) string {
	text = strings.TrimSpace(text)
	message = strings.TrimSpace(message)
	if message == "" || !strings.HasPrefix(text, message) {
		return text
	}

	rest := text[len(message):]
	last, _ := utf8.DecodeLastRuneInString(message)
	if next, _ := utf8.DecodeRuneInString(rest); rest != "" && !isBoundary(next) && !isBoundary(last) {
		return text
	}
	return strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(echoSeparators, r)
	})
}

const echoSeparators = ",.;:!?-"

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func (n *Normalizer) fallback(text string) models.Reply {
	if strings.TrimSpace(text) == "" {
		text = "Please try again."
	}
	return models.Reply{Text: text, Fallback: true}
}
