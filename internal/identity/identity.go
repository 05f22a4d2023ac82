// Package identity provides anonymous per-connection identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// ConnIDPrefix prefixes every generated connection id.
const ConnIDPrefix = "conn_"

type contextKey int

const connIDKey contextKey = iota

var connIDPattern = regexp.MustCompile(`^conn_[a-f0-9]{32}$`)

// NewConnectionID returns a random connection id ("conn_" + 32 hex chars).
func NewConnectionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate connection id: %w", err)
	}
	return ConnIDPrefix + hex.EncodeToString(buf), nil
}

// IsValidConnectionID reports whether id has the generated format.
func IsValidConnectionID(id string) bool {
	return connIDPattern.MatchString(id)
}

// WithConnID returns ctx carrying the connection id.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromContext extracts the connection id from ctx.
func ConnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(connIDKey).(string); ok {
		return v
	}
	return ""
}

// IPFromRequest returns a normalized remote IP for request tracing.
// X-Forwarded-For is honoured when present.
func IPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
