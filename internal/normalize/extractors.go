package normalize

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Extractor pulls reply text out of one known response shape. It reports false
// when the body does not have that shape or the text is blank.
type Extractor func(body []byte) (string, bool)

// ChatCompletion reads choices[0].message.content.
func ChatCompletion(body []byte) (string, bool) {
	root, ok := parseJSON(body)
	if !ok {
		return "", false
	}
	return stringAt(root, "choices.0.message.content")
}

// TextGenerationArray reads [0].generated_text.
func TextGenerationArray(body []byte) (string, bool) {
	root, ok := parseJSON(body)
	if !ok || !root.IsArray() {
		return "", false
	}
	return stringAt(root, "0.generated_text")
}

// TextGenerationObject reads a top-level generated_text.
func TextGenerationObject(body []byte) (string, bool) {
	root, ok := parseJSON(body)
	if !ok || !root.IsObject() {
		return "", false
	}
	return stringAt(root, "generated_text")
}

// PlainText accepts a body that is not JSON at all, for text-only providers.
// A body that opens like a JSON document but does not parse, typically one cut
// short by the response size cap, is rejected.
func PlainText(body []byte) (string, bool) {
	if gjson.ValidBytes(body) {
		return "", false
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return "", false
	}
	return text, text != ""
}

// DefaultExtractors covers the JSON shapes returned by chat-completion and
// text-generation providers, in priority order.
func DefaultExtractors() []Extractor {
	return []Extractor{ChatCompletion, TextGenerationArray, TextGenerationObject}
}

// ExtractorsFor returns the extractor chain for a payload style.
func ExtractorsFor(style string) []Extractor {
	extractors := DefaultExtractors()
	if style == "text" {
		extractors = append(extractors, PlainText)
	}
	return extractors
}

// parseJSON rejects incomplete documents so a truncated body never yields partial text.
func parseJSON(body []byte) (gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(body), true
}

func stringAt(root gjson.Result, path string) (string, bool) {
	v := root.Get(path)
	if v.Type != gjson.String {
		return "", false
	}
	text := strings.TrimSpace(v.Str)
	return text, text != ""
}
