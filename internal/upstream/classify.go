package upstream

import (
	"bytes"
	"net/http"

	"github.com/tidwall/gjson"
)

// Class is the retry classification of one upstream response.
type Class int

const (
	ClassSuccess Class = iota
	ClassTransient
	ClassTerminal
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	default:
		return "terminal"
	}
}

var loadingMarker = []byte("loading")

// Classify decides whether a response is usable, worth retrying, or final.
//
// A 2xx is always a success; unusable shapes are the normalizer's concern. A 503, or an
// error body mentioning "loading", is transient. With nonJSONIsTransient set, any non-JSON
// error body is also read as "still loading"; that is a heuristic and can misfire on
// unrelated proxy errors.
func Classify(status int, body []byte, nonJSONIsTransient bool) Class {
	if status >= 200 && status < 300 {
		return ClassSuccess
	}
	if status == http.StatusServiceUnavailable {
		return ClassTransient
	}
	if mentionsLoading(body) {
		return ClassTransient
	}
	if nonJSONIsTransient && !gjson.ValidBytes(body) {
		return ClassTransient
	}
	return ClassTerminal
}

func mentionsLoading(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), loadingMarker)
}
