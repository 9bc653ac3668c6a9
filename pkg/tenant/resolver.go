package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const (
	// MaxIdentifierLength caps request-supplied identifiers. 63 keeps them
	// DNS-label compatible and rejects obviously hostile input early.
	MaxIdentifierLength = 63
)

// identifierPattern accepts alphanumeric identifiers with inner hyphens,
// the common shape for both subdomains and header-supplied tenant IDs.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Resolver extracts a raw tenant identifier from an HTTP request. An empty
// string with a nil error means "no identifier present"; the middleware
// decides whether that is fatal.
type Resolver func(r *http.Request) (string, error)

func validIdentifier(id string) bool {
	if id == "" || len(id) > MaxIdentifierLength {
		return false
	}
	return identifierPattern.MatchString(id)
}

// NewHeaderResolver reads the tenant identifier from a request header.
// Defaults to X-Tenant-ID when headerName is empty.
func NewHeaderResolver(headerName string) Resolver {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return func(r *http.Request) (string, error) {
		id := strings.TrimSpace(r.Header.Get(headerName))
		if id == "" {
			return "", nil
		}
		if !validIdentifier(id) {
			return "", fmt.Errorf("%w: header %s", ErrInvalidIdentifier, headerName)
		}
		return id, nil
	}
}

// NewSubdomainResolver extracts the tenant from the leftmost subdomain,
// optionally stripping a known suffix (e.g. ".saas.example.com"). Bare
// domains and "www" yield no identifier rather than an error.
func NewSubdomainResolver(suffix string) Resolver {
	return func(r *http.Request) (string, error) {
		host := r.Host
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}

		// A tenant subdomain needs at least sub.domain.tld.
		if strings.Count(host, ".") < 2 {
			return "", nil
		}

		if suffix != "" {
			if !strings.HasSuffix(host, suffix) {
				return "", nil
			}
			host = strings.TrimSuffix(host, suffix)
		}

		sub, _, found := strings.Cut(host, ".")
		if suffix != "" && !found {
			sub = host
		}
		if sub == "" || sub == "www" {
			return "", nil
		}
		if !validIdentifier(sub) {
			return "", fmt.Errorf("%w: subdomain %q", ErrInvalidIdentifier, sub)
		}
		return sub, nil
	}
}

// NewPathResolver extracts the tenant from a URL path segment, 1-based.
// Position 2 matches routes like /tenants/{id}/....
func NewPathResolver(position int) Resolver {
	return func(r *http.Request) (string, error) {
		if position < 1 {
			return "", errors.New("tenant path resolver: position must be >= 1")
		}

		path := strings.Trim(r.URL.Path, "/")
		if path == "" {
			return "", nil
		}
		parts := strings.Split(path, "/")
		if position > len(parts) {
			return "", nil
		}

		id := parts[position-1]
		if !validIdentifier(id) {
			return "", fmt.Errorf("%w: path segment %q", ErrInvalidIdentifier, id)
		}
		return id, nil
	}
}

// NewCompositeResolver tries resolvers in order and returns the first
// non-empty identifier. Resolver errors abort immediately since they signal
// malformed input rather than mere absence.
func NewCompositeResolver(resolvers ...Resolver) Resolver {
	return func(r *http.Request) (string, error) {
		for _, resolve := range resolvers {
			id, err := resolve(r)
			if err != nil {
				return "", err
			}
			if id != "" {
				return id, nil
			}
		}
		return "", nil
	}
}
