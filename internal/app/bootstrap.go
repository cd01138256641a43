// Copyright 2026 miludeerforest
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app 统一初始化：配置、日志、存储与上游客户端的装配，供 cmd 复用。
package app

import (
	"context"
	"fmt"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/internal/poll"
	"github.com/miludeerforest/abp-studio-sub001/internal/remote"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/cache"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/results"
	"github.com/miludeerforest/abp-studio-sub001/internal/studio"
	"github.com/miludeerforest/abp-studio-sub001/pkg/config"
	"github.com/miludeerforest/abp-studio-sub001/pkg/log"
	"github.com/miludeerforest/abp-studio-sub001/pkg/secrets"
	"github.com/miludeerforest/abp-studio-sub001/pkg/utils"
)

// Bootstrap 装配好的应用依赖
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Secrets secrets.Store
	Results results.Store
	Cache   cache.Store
	Remote  *remote.Client
	Service *studio.Service
}

// NewBootstrap 根据配置创建 Bootstrap（日志/Secret/存储/上游客户端/应用服务）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Secret Store 失败: %w", err)
	}

	apiKey := cfg.Remote.APIKey
	if cfg.Remote.APIKeyName != "" {
		key, err := secretStore.Get(ctx, cfg.Remote.APIKeyName)
		if err != nil {
			return nil, fmt.Errorf("读取上游 API Key 失败: %w", err)
		}
		apiKey = key
	}

	resultsStore, err := results.NewStore(ctx, cfg.Results)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}
	cacheStore, err := cache.NewCache(ctx, cfg.Cache)
	if err != nil {
		resultsStore.Close()
		return nil, fmt.Errorf("初始化状态缓存失败: %w", err)
	}

	remoteClient := remote.NewClient(remote.Config{
		BaseURL:       cfg.Remote.BaseURL,
		Timeout:       utils.ParseDurationOr(cfg.Remote.Timeout, 0),
		APIKey:        apiKey,
		RPS:           cfg.Remote.RPS,
		Burst:         cfg.Remote.Burst,
		MaxConcurrent: cfg.Remote.MaxConcurrent,
	})

	service := studio.NewService(logger, remoteClient, resultsStore, cacheStore, studio.Config{
		Batch: batch.Config{MaxConcurrency: cfg.Batch.MaxConcurrency},
		Poll:  pollConfigFrom(cfg.Poll),
	})

	return &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Secrets: secretStore,
		Results: resultsStore,
		Cache:   cacheStore,
		Remote:  remoteClient,
		Service: service,
	}, nil
}

// pollConfigFrom 配置文件值转轮询配置；空值用内置默认
func pollConfigFrom(cfg config.PollConfig) poll.Config {
	def := poll.DefaultConfig()
	out := poll.Config{
		DefaultInterval:   utils.ParseDurationOr(cfg.DefaultInterval, def.DefaultInterval),
		MediumInterval:    utils.ParseDurationOr(cfg.MediumInterval, def.MediumInterval),
		ShortInterval:     utils.ParseDurationOr(cfg.ShortInterval, def.ShortInterval),
		MediumRatio:       cfg.MediumRatio,
		ShortRatio:        cfg.ShortRatio,
		DegradedThreshold: cfg.DegradedThreshold,
	}
	if out.MediumRatio <= 0 {
		out.MediumRatio = def.MediumRatio
	}
	if out.ShortRatio <= 0 {
		out.ShortRatio = def.ShortRatio
	}
	if out.DegradedThreshold <= 0 {
		out.DegradedThreshold = def.DegradedThreshold
	}
	return out
}

// Close 释放 Bootstrap 持有的资源
func (b *Bootstrap) Close() {
	if b.Service != nil {
		b.Service.Close()
	}
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
	if b.Results != nil {
		b.Results.Close()
	}
}
