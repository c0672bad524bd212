package identity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

const (
	KindUser    = "user"
	KindIP      = "ip"
	KindUnknown = "unknown"
)

type ctxKey int

const principalKey ctxKey = 0

// WithPrincipal attaches an authenticated principal ID to the request context.
// The auth layer calls this after validating a session or token.
func WithPrincipal(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, principalKey, id)
}

// PrincipalFromContext returns the authenticated principal ID, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok && id != ""
}

// ClientKey represents a normalized caller identifier.
type ClientKey struct {
	Kind string
	ID   string
	Key  string
}

// Resolver resolves a caller identity from an HTTP request.
type Resolver struct {
	ForwardedHdr string
	RealIPHdr    string
	CDNIPHdr     string
}

func NewResolver() *Resolver {
	return &Resolver{
		ForwardedHdr: "X-Forwarded-For",
		RealIPHdr:    "X-Real-IP",
		CDNIPHdr:     "CF-Connecting-IP",
	}
}

// Resolve derives a stable identity, most trustworthy source first:
// authenticated principal, forwarded-for chain, proxy real-ip, CDN
// connecting-ip, transport peer address. It always produces an identity;
// a caller with no usable source resolves to the literal "unknown".
func (r *Resolver) Resolve(req *http.Request) (ClientKey, error) {
	if req == nil {
		return ClientKey{}, errors.New("nil request")
	}

	if id, ok := PrincipalFromContext(req.Context()); ok {
		return newKey(KindUser, id), nil
	}

	if ip := firstForwardedHop(req.Header.Get(r.ForwardedHdr)); ip != "" {
		return newKey(KindIP, ip), nil
	}

	if ip := strings.TrimSpace(req.Header.Get(r.RealIPHdr)); ip != "" {
		return newKey(KindIP, ip), nil
	}

	if ip := strings.TrimSpace(req.Header.Get(r.CDNIPHdr)); ip != "" {
		return newKey(KindIP, ip), nil
	}

	if ip := parseRemoteIP(req.RemoteAddr); ip != "" {
		return newKey(KindIP, ip), nil
	}

	return newKey(KindUnknown, KindUnknown), nil
}

func newKey(kind, id string) ClientKey {
	return ClientKey{
		Kind: kind,
		ID:   id,
		Key:  kind + ":" + id,
	}
}

// firstForwardedHop returns the first entry of a forwarded-for chain.
// Some proxies inject the placeholder "unknown" for the origin hop; it
// carries no identity and is skipped.
func firstForwardedHop(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.Split(value, ",")
	if len(parts) == 0 {
		return ""
	}
	hop := strings.TrimSpace(parts[0])
	if strings.EqualFold(hop, "unknown") {
		return ""
	}
	return hop
}

func parseRemoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}
