// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"

	"search-agent/pkg/config"
)

// RefPrefix 配置值以此前缀开头时视为 secret 引用
const RefPrefix = "secret:"

// Store 只读 Secret 存储接口
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)
}

// NewStore 创建 Secret Store
func NewStore(ctx context.Context, cfg config.SecretsConfig) (Store, error) {
	switch cfg.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(ctx, cfg.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Provider)
	}
}

// IsRef 是否为 secret:<key> 引用
func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// Resolve 若 value 为 secret:<key> 则从 store 读取，否则原样返回
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	key := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if key == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	return store.Get(ctx, key)
}

// ResolveProviderKeys 解析所有 LLM provider 的 api_key 引用；没有引用时不创建 Store
func ResolveProviderKeys(ctx context.Context, cfg *config.Config) error {
	var store Store
	for name, pc := range cfg.Model.LLM.Providers {
		if !IsRef(pc.APIKey) {
			continue
		}
		if store == nil {
			var err error
			if store, err = NewStore(ctx, cfg.Secrets); err != nil {
				return err
			}
		}
		key, err := Resolve(ctx, store, pc.APIKey)
		if err != nil {
			return fmt.Errorf("resolve api_key of provider %s: %w", name, err)
		}
		pc.APIKey = key
		cfg.Model.LLM.Providers[name] = pc
	}
	return nil
}
