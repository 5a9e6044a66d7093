package ratelimit

import (
	"strings"
)

// unlimitedPrefixes are never rate limited
var unlimitedPrefixes = []string{"/api/progress/"}

var unlimitedPaths = map[string]bool{
	"/health":      true,
	"/metrics":     true,
	"/ws/progress": true,
}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns the matching EndpointConfig or nil if no match is found.
// Exact matches win over prefix matches.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" {
		if unlimitedPaths[path] {
			return &EndpointConfig{Path: path}
		}
		for _, p := range unlimitedPrefixes {
			if strings.HasPrefix(path, p) {
				return &EndpointConfig{Path: p}
			}
		}
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
