// Package secretguard implements spec §4.6's Secret Detector & Rewriter:
// it finds which fake credential a request carries and produces a rewritten
// header set with every occurrence of that fake replaced by the resolved
// real value, in the same terse single-purpose style as pkg/sanitize.
package secretguard

import (
	"net/http"
	"strings"
)

// Detect reports whether fakeSecret appears as a substring of any value in
// headers.
func Detect(headers http.Header, fakeSecret string) bool {
	for _, values := range headers {
		for _, v := range values {
			if strings.Contains(v, fakeSecret) {
				return true
			}
		}
	}
	return false
}

// Rewrite returns a copy of headers with every occurrence of fakeSecret in
// every value replaced by realSecret, and the Host header stripped (the
// forwarded request's URL carries the upstream host instead).
func Rewrite(headers http.Header, fakeSecret, realSecret string) http.Header {
	out := make(http.Header, len(headers))
	for key, values := range headers {
		if strings.EqualFold(key, "Host") {
			continue
		}
		rewritten := make([]string, len(values))
		for i, v := range values {
			rewritten[i] = strings.ReplaceAll(v, fakeSecret, realSecret)
		}
		out[key] = rewritten
	}
	return out
}
