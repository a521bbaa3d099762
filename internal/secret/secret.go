// Package secret reads the chat bot credential from AWS Secrets Manager and
// caches it for the lifetime of the process.
package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrSecretNotFound is returned when the secret, or the key inside it,
// does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// Source supplies a credential value.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// GetSecretValueAPI is the interface for the Secrets Manager GetSecretValue
// operation. Used for testing with mock implementations.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager reads a credential stored as a JSON object in a secret.
type SecretsManager struct {
	client GetSecretValueAPI
	name   string
	key    string
}

// NewSecretsManager creates a Source reading key from the JSON secret name.
// An empty key returns the whole secret string.
func NewSecretsManager(cfg aws.Config, name, key string) *SecretsManager {
	return NewSecretsManagerWithClient(secretsmanager.NewFromConfig(cfg), name, key)
}

// NewSecretsManagerWithClient creates a SecretsManager with a custom client,
// used for testing.
func NewSecretsManagerWithClient(client GetSecretValueAPI, name, key string) *SecretsManager {
	return &SecretsManager{client: client, name: name, key: key}
}

// Token fetches the secret and extracts the configured key.
func (s *SecretsManager) Token(ctx context.Context) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.name),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, s.name)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", s.name, err)
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", s.name)
	}
	if s.key == "" {
		return *out.SecretString, nil
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return "", fmt.Errorf("failed to decode secret %s: %w", s.name, err)
	}

	value, ok := values[s.key]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: key %q in %s", ErrSecretNotFound, s.key, s.name)
	}
	return value, nil
}
