package domain

import "time"

// CredentialTriple is the temporary identity-scoped authorization material
// returned by the credential broker. Expiration is always stamped locally by
// the lifecycle manager; the broker's claimed lifetime is never stored.
type CredentialTriple struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// IsZero reports whether the triple carries no material at all.
func (c CredentialTriple) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == "" && c.SessionToken == ""
}
