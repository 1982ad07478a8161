// Copyright 2026 fanjia1024
// HashiCorp Vault based secret store

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"search-agent/pkg/config"
)

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
}

// NewVaultStore 创建 Vault secret store（只读）；创建时做一次健康检查
func NewVaultStore(ctx context.Context, cfg config.VaultConfig) (Store, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if _, err := client.Sys().HealthWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	return newVaultStoreWithClient(client, cfg.PathPrefix), nil
}

func newVaultStoreWithClient(client *vault.Client, pathPrefix string) *vaultStore {
	prefix := strings.Trim(pathPrefix, "/")
	if prefix == "" {
		prefix = "secret/data"
	}
	return &vaultStore{client: client, pathPrefix: prefix}
}

// Get key 形如 "ollama" 或 "ollama#api_key"；# 后为字段名，缺省取 value 字段或第一个字符串字段
func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	path, field, _ := strings.Cut(key, "#")
	secret, err := v.client.Logical().ReadWithContext(ctx, v.buildPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return pickField(secret.Data, field, key)
}

// pickField 兼容 KV v2（值嵌套在 data 下）与 KV v1
func pickField(data map[string]interface{}, field, key string) (string, error) {
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	if field != "" {
		if s, ok := data[field].(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("secret field %q not found: %s", field, key)
	}
	if s, ok := data["value"].(string); ok {
		return s, nil
	}
	for _, val := range data {
		if s, ok := val.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) buildPath(key string) string {
	return fmt.Sprintf("%s/%s", v.pathPrefix, strings.TrimLeft(key, "/"))
}
