// Package proxy implements the local HTTP permission proxy: it classifies
// each outbound request a sandboxed program wants to make into a required
// HTTP capability, checks it against the permission store, and forwards or
// denies accordingly.
package proxy

import (
	"net/url"

	"github.com/goodtune/ghbroker/internal/capability"
)

// Classify derives the HTTP capability required to perform method against
// rawURL: host from the URL's hostname, pathPattern from
// its path, methods from the single normalized verb.
func Classify(rawURL, method string) (capability.Capability, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return capability.Capability{}, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return capability.Capability{
		Kind:        capability.KindHTTP,
		Host:        u.Hostname(),
		PathPattern: path,
		Methods:     []string{capability.NormalizeMethod(method)},
	}, nil
}
