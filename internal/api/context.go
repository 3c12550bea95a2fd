package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"

	"mfa-orphans/internal/action/domain"
)

type contextKey struct{ name string }

var (
	adminUIDKey  = contextKey{"admin_uid"}
	clientIPKey  = contextKey{"client_ip"}
	userAgentKey = contextKey{"user_agent"}
)

// maxUALen bounds the user agent recorded in queued actions.
const maxUALen = 256

// WithOperator returns a context carrying the authenticated admin uid.
func WithOperator(ctx context.Context, adminUID string) context.Context {
	return context.WithValue(ctx, adminUIDKey, adminUID)
}

// GetAdminUID returns the admin uid from context and true if set; otherwise "", false.
func GetAdminUID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminUIDKey).(string)
	return v, ok && v != ""
}

// withClient stores the caller's address and user agent.
func withClient(ctx context.Context, ip, ua string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, ua)
}

// RequesterFrom builds the requester block for a queued action from the request context.
func RequesterFrom(ctx context.Context) domain.Requester {
	uid, _ := GetAdminUID(ctx)
	ip, _ := ctx.Value(clientIPKey).(string)
	ua, _ := ctx.Value(userAgentKey).(string)
	if ip == "" {
		ip = "unknown"
	}
	return domain.Requester{AdminUID: uid, IP: ip, UA: ua}
}

// ContextClientIP returns the caller IP stored by ClientInfo, or "". It satisfies audit.IPExtractor.
func ContextClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP headers are believed.
// The zero value trusts nobody, so the requester IP is always the TCP peer.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses a comma-separated list of IPs and CIDRs.
func ParseTrustedProxies(s string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (t TrustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's IP. Forwarding headers are only read when the TCP peer is a
// trusted proxy; X-Forwarded-For is walked from the right and the first untrusted hop wins.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if peer == "" || !t.trusts(peer) {
		if peer == "" {
			return "unknown"
		}
		return peer
	}
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		hops := strings.Split(s, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !t.trusts(hop) || i == 0 {
				return hop
			}
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		if _, err := netip.ParseAddr(s); err == nil {
			return s
		}
	}
	return peer
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// userAgent caps the user agent at maxUALen bytes without splitting a rune.
func userAgent(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) <= maxUALen {
		return ua
	}
	ua = ua[:maxUALen]
	for i := 0; i < utf8.UTFMax-1 && len(ua) > 0; i++ {
		if c, size := utf8.DecodeLastRuneInString(ua); c != utf8.RuneError || size != 1 {
			break
		}
		ua = ua[:len(ua)-1]
	}
	return ua
}
