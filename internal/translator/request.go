package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrEmptyMessage indicates the inbound body carried no usable message.
var ErrEmptyMessage = errors.New("missing message")

// ErrMalformedBody indicates the inbound body could not be parsed at all.
var ErrMalformedBody = errors.New("malformed request body")

// ErrBodyTooLarge indicates the inbound body exceeded the server's read cap.
var ErrBodyTooLarge = errors.New("request body too large")

// InboundBody is the JSON object accepted on the chat route. Fields are kept untyped
// so a wrongly typed message is reported as missing rather than as a parse failure.
type InboundBody struct {
	Message any
	APIKey  any
}

// DecodeInboundBody reads a single JSON value from r. An empty body, JSON null, or a
// non-object value decodes to an empty InboundBody.
func DecodeInboundBody(r io.Reader) (InboundBody, error) {
	decoder := json.NewDecoder(r)

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return InboundBody{}, nil
		}
		if tooLarge := bodyTooLarge(err); tooLarge != nil {
			return InboundBody{}, tooLarge
		}
		return InboundBody{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if tooLarge := bodyTooLarge(err); tooLarge != nil {
			return InboundBody{}, tooLarge
		}
		return InboundBody{}, fmt.Errorf("%w: body must contain a single JSON value", ErrMalformedBody)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return InboundBody{}, nil
	}
	return InboundBody{
		Message: obj["message"],
		APIKey:  obj["apiKey"],
	}, nil
}

func bodyTooLarge(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, mbe.Limit)
	}
	return nil
}

// APIKeyOverride returns the body-supplied key when it is a string.
func (b InboundBody) APIKeyOverride() string {
	if s, ok := b.APIKey.(string); ok {
		return s
	}
	return ""
}

// ValidateMessage returns the trimmed message capped at maxLen characters.
// Oversized input is truncated, never rejected.
func ValidateMessage(raw any, maxLen int) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", ErrEmptyMessage
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyMessage
	}
	return Truncate(s, maxLen), nil
}

// Truncate returns at most maxLen leading runes of s. A non-positive maxLen disables the cap.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i]
		}
		count++
	}
	return s
}
