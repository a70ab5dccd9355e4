package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"crawlerd/internal/models"
)

var ErrNotFound = errors.New("api key not found")

// Validator resolves the SHA-256 hex hash of an API key. Raw keys never cross
// this boundary.
type Validator interface {
	Lookup(ctx context.Context, hash string) (*models.ApiKeyRecord, error)
}

func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the only form of a key that may be logged.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

// FromRequest reads "Authorization: Bearer <key>" and falls back to the
// X-API-Key header older agents send. It returns "" when neither is usable.
func FromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
