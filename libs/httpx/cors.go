package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins. An origin entry
// may be "*" or use a leading subdomain wildcard such as "https://*.example.com".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// APICORSPolicy is the policy for the booking API: JSON reads and writes from the
// given browser origins, exposing the request id.
func APICORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader, "X-Business-Id"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

type corsHeaders struct {
	methods, headers, exposed, maxAge string
}

// WithCORS answers preflights and decorates responses for allowed origins. Preflights
// from other origins get 403. With no allowed origins it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := normalizeList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	static := corsHeaders{
		methods: strings.Join(normalizeList(cfg.AllowedMethods), ", "),
		headers: strings.Join(normalizeList(cfg.AllowedHeaders), ", "),
		exposed: strings.Join(normalizeList(cfg.ExposedHeaders), ", "),
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		static.maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			h := w.Header()
			h.Add("Vary", "Origin")

			allow, ok := matchOrigin(origin, origins, cfg.AllowCredentials)
			if !ok {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allow)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if static.exposed != "" {
				h.Set("Access-Control-Expose-Headers", static.exposed)
			}
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			setIfNotEmpty(h, "Access-Control-Allow-Methods", static.methods)
			setIfNotEmpty(h, "Access-Control-Allow-Headers", static.headers)
			setIfNotEmpty(h, "Access-Control-Max-Age", static.maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func setIfNotEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	for _, candidate := range allowed {
		switch {
		case candidate == "*":
			// A literal "*" is not valid alongside credentials; echo the origin instead.
			if allowCredentials {
				return origin, true
			}
			return "*", true
		case strings.EqualFold(candidate, origin):
			return origin, true
		case wildcardMatch(candidate, origin):
			return origin, true
		}
	}
	return "", false
}

// wildcardMatch handles "scheme://*.domain" entries. The bare domain does not match.
func wildcardMatch(pattern, origin string) bool {
	scheme, host, ok := strings.Cut(pattern, "://*.")
	if !ok {
		return false
	}
	prefix := scheme + "://"
	if len(origin) <= len(prefix) || !strings.EqualFold(origin[:len(prefix)], prefix) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(origin[len(prefix):]), "."+strings.ToLower(host))
}

// SplitList splits a comma separated env value such as CORS_ALLOWED_ORIGINS.
func SplitList(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}
