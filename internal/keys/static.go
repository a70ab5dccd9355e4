package keys

import (
	"context"
	"strings"

	"crawlerd/internal/models"
	"crawlerd/internal/structures"
)

// StaticValidator serves keys declared in configuration by hash.
type StaticValidator struct {
	records map[string]*models.ApiKeyRecord
}

func NewStaticValidator(keys []structures.StaticKey) *StaticValidator {
	records := make(map[string]*models.ApiKeyRecord, len(keys))
	for _, k := range keys {
		records[strings.ToLower(k.Hash)] = &models.ApiKeyRecord{
			OwnerID:         k.OwnerID,
			Name:            k.Name,
			DomainAllowList: normalizeAllowList(k.Domains),
			IsValid:         !k.Disabled,
		}
	}
	return &StaticValidator{records: records}
}

// normalizeAllowList brings allow-list entries into the form ingested domains
// take, so "Example.com:443" or "example.com." still match.
func normalizeAllowList(domains []string) []string {
	var out []string
	for _, d := range domains {
		if d = models.NormalizeDomain(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (v *StaticValidator) Lookup(_ context.Context, hash string) (*models.ApiKeyRecord, error) {
	rec, ok := v.records[strings.ToLower(hash)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.DomainAllowList = append([]string(nil), rec.DomainAllowList...)
	return &cp, nil
}
