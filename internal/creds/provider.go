// Package creds supplies outbound authentication headers for delivery
// requests. Consumers only ever see an opaque per-request header snapshot;
// raw secrets never cross the package boundary after construction.
package creds

import (
	"encoding/base64"
)

// AuthType selects the Authorization scheme for the delivery endpoint.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
)

// HeaderSet is an opaque snapshot of the headers to attach to one
// delivery request.
type HeaderSet map[string]string

// Provider supplies the current header snapshot. Implementations may
// rotate credentials between calls; each call returns a coherent set.
type Provider interface {
	Headers() HeaderSet
}

// StaticConfig configures a StaticProvider.
type StaticConfig struct {
	Type     AuthType
	Username string
	Password string
	Token    string
	// Custom headers are attached verbatim to every request.
	Custom map[string]string
}

// StaticProvider serves a fixed credential set.
type StaticProvider struct {
	authorization string
	custom        map[string]string
}

// NewStaticProvider creates a provider from the given configuration. The
// Authorization value is computed once here so callers never handle the
// raw secret again.
func NewStaticProvider(cfg StaticConfig) *StaticProvider {
	p := &StaticProvider{custom: cfg.Custom}

	switch cfg.Type {
	case AuthBasic:
		raw := cfg.Username + ":" + cfg.Password
		p.authorization = "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	case AuthBearer:
		p.authorization = "Bearer " + cfg.Token
	}

	return p
}

// Headers returns a fresh copy of the header snapshot.
func (p *StaticProvider) Headers() HeaderSet {
	headers := make(HeaderSet, len(p.custom)+1)
	for k, v := range p.custom {
		headers[k] = v
	}
	if p.authorization != "" {
		headers["Authorization"] = p.authorization
	}
	return headers
}

// Ensure StaticProvider implements Provider interface.
var _ Provider = (*StaticProvider)(nil)
