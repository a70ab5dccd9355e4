package models

// ApiKeyRecord is what the key collaborator resolves a key hash to.
// An empty DomainAllowList means the key may report any domain.
type ApiKeyRecord struct {
	OwnerID         string   `json:"ownerId"`
	Name            string   `json:"name"`
	DomainAllowList []string `json:"domainAllowList"`
	IsValid         bool     `json:"isValid"`
}

func (r *ApiKeyRecord) AllowsDomain(domain string) bool {
	if len(r.DomainAllowList) == 0 {
		return true
	}
	domain = NormalizeDomain(domain)
	for _, d := range r.DomainAllowList {
		if NormalizeDomain(d) == domain {
			return true
		}
	}
	return false
}

// PrimaryDomain is the first allowed domain, or "" for unrestricted keys.
func (r *ApiKeyRecord) PrimaryDomain() string {
	if len(r.DomainAllowList) == 0 {
		return ""
	}
	return r.DomainAllowList[0]
}
