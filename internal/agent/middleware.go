package agent

import (
	"net"
	"net/http"
	"strings"
	"time"

	"crawlerd/internal/crawlers"
	"crawlerd/internal/models"
)

const countryHeader = "CF-IPCountry"

type MiddlewareOptions struct {
	// OnlyKnown skips automated clients that are not in the crawler registry.
	OnlyKnown bool
	Geo       GeoResolver
	// TrustForwarded takes the client address from X-Forwarded-For.
	TrustForwarded bool
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware tracks every crawler request served by next. Requests from
// humans pass through untouched.
func Middleware(a *Agent, opts MiddlewareOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			var identity *models.CrawlerIdentity
			if opts.OnlyKnown {
				identity = crawlers.ClassifyKnown(ua)
			} else {
				identity = crawlers.Classify(ua)
			}
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := int(time.Since(start).Milliseconds())
			status := rec.status

			a.Track(EventInput{
				Domain:         r.Host,
				Path:           r.URL.Path,
				UserAgent:      ua,
				Crawler:        identity,
				StatusCode:     &status,
				ResponseTimeMs: &elapsed,
				Country:        requestCountry(r, opts),
			})
		})
	}
}

func requestCountry(r *http.Request, opts MiddlewareOptions) string {
	if c := strings.TrimSpace(r.Header.Get(countryHeader)); c != "" && c != "XX" {
		return strings.ToUpper(c)
	}
	if opts.Geo == nil {
		return ""
	}
	return opts.Geo.Country(clientIP(r, opts.TrustForwarded))
}

func clientIP(r *http.Request, trustForwarded bool) net.IP {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
