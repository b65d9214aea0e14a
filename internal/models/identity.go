package models

// IdentityClaims is the flat claim set merged from the identity token and UserInfo.
type IdentityClaims map[string]string

// Merge copies other into c; values from other win on collision.
func (c IdentityClaims) Merge(other IdentityClaims) {
	for k, v := range other {
		c[k] = v
	}
}

// Identity is what policy and resolution work on, derived from claims through
// the provider's claim mapping.
type Identity struct {
	ProviderID string
	Subject    string
	Username   string
	Email      string
	FirstName  string
	LastName   string
	Claims     IdentityClaims
}
