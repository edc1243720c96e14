package config

import "github.com/rickgao/kucoin-data/internal/auth"

// IsSet reports whether any credential field is filled in.
func (c CredentialsConfig) IsSet() bool {
	return c.APIKey != "" || c.APISecret != "" || c.Passphrase != ""
}

// Build returns the credential set, or (nil, nil) when none is configured.
func (c CredentialsConfig) Build() (*auth.Credentials, error) {
	if !c.IsSet() {
		return nil, nil
	}
	return auth.NewCredentials(c.APIKey, c.APISecret, c.Passphrase, c.KeyVersion)
}
