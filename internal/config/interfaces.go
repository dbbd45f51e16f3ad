package config

import "context"

// SecretProvider resolves secret values by key. SSMProvider is used in
// deployed environments and EnvVarProvider locally.
type SecretProvider interface {
	// GetParametersBatch returns the plaintext value for every key it could
	// resolve. Implementations batch requests to stay under API limits.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
