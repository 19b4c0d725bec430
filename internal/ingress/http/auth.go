package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/arkbound/orderfeed/internal/feed/domain"
)

// AuthConfig is the optional per-partner API key policy described in
// spec §6: a request must carry a matching X-API-Key header for the
// partner its path names, unless it carries the master key.
type AuthConfig struct {
	Enabled     bool
	MasterKey   string
	PartnerKeys map[domain.PartnerID]string
}

// FeedAuth builds the feed-ingest auth middleware from cfg. It returns
// nil when auth is disabled, so callers can pass it straight to
// RegisterRoutes without an extra branch.
func FeedAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			partner, ok := partnerFromFeedPath(r.URL.Path)
			if !ok {
				writeError(w, http.StatusBadRequest, "UNKNOWN_PARTNER")
				return
			}

			got := r.Header.Get("X-API-Key")
			if got == "" {
				writeError(w, http.StatusUnauthorized, "MISSING_API_KEY")
				return
			}
			if keyMatches(got, cfg.MasterKey) {
				next.ServeHTTP(w, r)
				return
			}
			want, ok := cfg.PartnerKeys[partner]
			if !ok || !keyMatches(got, want) {
				writeError(w, http.StatusForbidden, "INVALID_API_KEY")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// partnerFromFeedPath extracts the partner segment from a feed ingest
// path such as /api/feed/partner-a or /api/feed/partner-b/batch.
func partnerFromFeedPath(path string) (domain.PartnerID, bool) {
	const prefix = "/api/feed/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	segment, _, _ := strings.Cut(rest, "/")
	switch segment {
	case "partner-a":
		return domain.PartnerA, true
	case "partner-b":
		return domain.PartnerB, true
	default:
		return "", false
	}
}
