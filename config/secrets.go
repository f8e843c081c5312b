package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// SecretKeys lists the integration keys that can be seeded from a secret backend.
var SecretKeys = []string{"wazuh_api_key", "splunk_api_key", "elastic_api_key", "ml_api_key"}

// ErrSecretNotFound is returned when a backend has no value for the key
var ErrSecretNotFound = errors.New("secret not found")

// SecretManager retrieves integration secrets by key
type SecretManager interface {
	GetSecret(key string) (string, error)
}

// EnvSecretManager uses environment variables (default)
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "SECLABEL_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set: %w", envKey, ErrSecretNotFound)
	}
	return value, nil
}

// VaultSecretManager retrieves secrets from HashiCorp Vault
type VaultSecretManager struct {
	path   string
	client *api.Client
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	path := config.Secrets.Vault.Path
	if path == "" {
		path = "secret/seclabel"
	}

	return &VaultSecretManager{path: path, client: client}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	secret, err := v.client.Logical().Read(v.path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret at path %s: %w", v.path, ErrSecretNotFound)
	}

	// KV v2 nests the payload under "data"
	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not in Vault secret: %w", key, ErrSecretNotFound)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}
	return strValue, nil
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager. The secret is a
// JSON object keyed by SecretKeys.
type AWSSecretManager struct {
	secretID string
	client   *secretsmanager.SecretsManager

	cached map[string]string
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	awsCfg := &aws.Config{Region: aws.String(config.Secrets.AWS.Region)}
	if config.Secrets.AWS.AccessKey != "" && config.Secrets.AWS.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			config.Secrets.AWS.AccessKey,
			config.Secrets.AWS.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	secretID := config.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "seclabel/secrets"
	}

	return &AWSSecretManager{
		secretID: secretID,
		client:   secretsmanager.New(sess),
	}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	if a.cached == nil {
		result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
			SecretId: aws.String(a.secretID),
		})
		if err != nil {
			return "", fmt.Errorf("failed to get secret from AWS: %w", err)
		}
		if result.SecretString == nil {
			return "", fmt.Errorf("AWS secret %s has no string value: %w", a.secretID, ErrSecretNotFound)
		}

		var secrets map[string]string
		if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
			return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
		}
		a.cached = secrets
	}

	value, ok := a.cached[key]
	if !ok {
		return "", fmt.Errorf("key %s not in AWS secret: %w", key, ErrSecretNotFound)
	}
	return value, nil
}

// NewSecretManager creates the appropriate secret manager based on configuration
func NewSecretManager(config *Config) (SecretManager, error) {
	switch config.Secrets.Provider {
	case "", "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Secrets.Provider)
	}
}

// LoadIntegrationSecrets returns every SecretKeys entry the manager knows about.
// Missing keys are skipped; any other backend failure is returned.
func LoadIntegrationSecrets(manager SecretManager) (map[string]string, error) {
	found := make(map[string]string, len(SecretKeys))
	for _, key := range SecretKeys {
		value, err := manager.GetSecret(key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", key, err)
		}
		found[key] = value
	}
	return found, nil
}
