package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures a VaultClient.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	MountPath string
}

// VaultClient is the broker's concrete Client, backed by a HashiCorp Vault
// KV v2 mount. It stands in for whatever real secrets-manager SDK a
// deployment actually speaks to: the upstream-read and upstream-write
// stages never see *vault.Client directly, only the Client interface.
type VaultClient struct {
	cfg    VaultConfig
	client *vault.Client
}

// NewVaultClient builds a VaultClient from cfg.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("upstream: vault address is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("upstream: vault token is required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	cfg.Address = strings.TrimRight(cfg.Address, "/")

	apiCfg := vault.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("upstream: creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultClient{cfg: cfg, client: client}, nil
}

// Sync lists every path under the mount and fetches its current value.
func (c *VaultClient) Sync(ctx context.Context) ([]Secret, error) {
	kv := c.client.KVv2(c.cfg.MountPath)

	mounted, err := c.client.Logical().ListWithContext(ctx, c.cfg.MountPath+"/metadata")
	if err != nil {
		return nil, classifyVaultError(fmt.Errorf("upstream: listing secrets: %w", err))
	}
	if mounted == nil || mounted.Data == nil {
		return nil, nil
	}
	rawKeys, _ := mounted.Data["keys"].([]interface{})

	secrets := make([]Secret, 0, len(rawKeys))
	for _, rk := range rawKeys {
		path, ok := rk.(string)
		if !ok {
			continue
		}
		entry, err := kv.Get(ctx, path)
		if err != nil {
			continue
		}
		secrets = append(secrets, secretFromKV(path, entry))
	}
	return secrets, nil
}

// GetByID fetches a single secret by its vault path.
func (c *VaultClient) GetByID(ctx context.Context, id string) (*Secret, error) {
	kv := c.client.KVv2(c.cfg.MountPath)
	entry, err := kv.Get(ctx, id)
	if err != nil {
		if isVaultNotFound(err) {
			return nil, nil
		}
		return nil, classifyVaultError(fmt.Errorf("upstream: get %q: %w", id, err))
	}
	secret := secretFromKV(id, entry)
	return &secret, nil
}

// Create stores value at key, using key as both the id and the key since
// a KV v2 mount has no independent id concept.
func (c *VaultClient) Create(ctx context.Context, key, value string) (*Secret, error) {
	kv := c.client.KVv2(c.cfg.MountPath)
	written, err := kv.Put(ctx, key, map[string]interface{}{"value": value})
	if err != nil {
		return nil, classifyVaultError(fmt.Errorf("upstream: create %q: %w", key, err))
	}
	return &Secret{ID: key, Key: key, Value: value, RateLimit: rateLimitFromVersionMetadata(written)}, nil
}

func secretFromKV(path string, entry *vault.KVSecret) Secret {
	value := ""
	if entry != nil && entry.Data != nil {
		if v, ok := entry.Data["value"]; ok {
			if s, ok := v.(string); ok {
				value = s
			} else {
				if encoded, err := json.Marshal(v); err == nil {
					value = string(encoded)
				}
			}
		}
	}
	return Secret{ID: path, Key: path, Value: value}
}

func rateLimitFromVersionMetadata(*vault.KVSecret) *RateLimit {
	// KV v2 doesn't report request quota the way a hosted secrets-manager
	// API does; a real deployment's concrete client would parse response
	// headers here. Left nil until wired to such a backend.
	return nil
}

func isVaultNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *vault.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return strings.Contains(err.Error(), "404")
}

// classifyVaultError tags err with the ErrKind its stage-level caller needs
// to pick an HTTP status, the same way isVaultNotFound above already picks
// the 404 case back apart from a generic request failure.
func classifyVaultError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *vault.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 401, 403:
			return &Error{Kind: ErrKindUnauthorized, Err: err}
		case 429:
			return &Error{Kind: ErrKindRateLimit, Err: err}
		default:
			return &Error{Kind: ErrKindUnspecified, Err: err}
		}
	}
	return &Error{Kind: ErrKindTransport, Err: err}
}

var _ Client = (*VaultClient)(nil)
