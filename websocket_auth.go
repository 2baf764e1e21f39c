package main

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker accepts same-host requests, requests without an Origin header,
// and any origin listed in allowed. A "*" entry accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(parsed.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

// authorizeAdmin checks the token carried by a WebSocket admin message.
func (h *Hub) authorizeAdmin(token string) error {
	return h.authorizer.Authorize(token)
}
