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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Poll       PollConfig       `mapstructure:"poll"`
	Results    ResultsConfig    `mapstructure:"results"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port    int        `mapstructure:"port"`
	Host    string     `mapstructure:"host"`
	Timeout string     `mapstructure:"timeout"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RemoteConfig 上游内容生成服务配置
type RemoteConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	Timeout       string  `mapstructure:"timeout"`         // 如 "30s"，空则默认 30s
	APIKey        string  `mapstructure:"api_key"`         // 支持 ${ENV_VAR} 形式
	APIKeyName    string  `mapstructure:"api_key_name"`    // Secret Store 中的 key 名；非空时优先于 api_key
	RPS           float64 `mapstructure:"rps"`             // 对上游的请求速率上限，<=0 不限流
	Burst         int     `mapstructure:"burst"`           // 限流突发量，<=0 默认 1
	MaxConcurrent int     `mapstructure:"max_concurrent"`  // 对上游的最大并发请求数，<=0 不限制
}

// BatchConfig 批处理器配置
type BatchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"` // 批内并发上限 K，<=0 使用默认 2
}

// PollConfig 任务轮询配置；阈值为经验值，按需调整
type PollConfig struct {
	DefaultInterval   string  `mapstructure:"default_interval"`   // 默认（最长）间隔，空则 5s
	MediumInterval    string  `mapstructure:"medium_interval"`    // 进度过半后的间隔，空则 2s
	ShortInterval     string  `mapstructure:"short_interval"`     // 接近完成时的间隔，空则 800ms
	MediumRatio       float64 `mapstructure:"medium_ratio"`       // 进入 medium 档的进度比，<=0 则 0.5
	ShortRatio        float64 `mapstructure:"short_ratio"`        // 进入 short 档的进度比，<=0 则 0.8
	DegradedThreshold int     `mapstructure:"degraded_threshold"` // 连续失败多少次后置 degraded，<=0 则 3
}

// ResultsConfig 批次结果存储配置
type ResultsConfig struct {
	Type     string `mapstructure:"type"`      // memory | postgres
	DSN      string `mapstructure:"dsn"`       // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 任务状态缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// SecretsConfig Secret Store 配置（上游 API Key 等）
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | memory | vault
	Vault    VaultSecretConfig `mapstructure:"vault"`
}

// VaultSecretConfig Vault 连接配置
type VaultSecretConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${ENV_VAR} 形式的值
func replaceEnvVars(config *Config) {
	if strings.HasPrefix(config.Remote.APIKey, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Remote.APIKey, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Remote.APIKey = val
		}
	}
	if strings.HasPrefix(config.Secrets.Vault.Token, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Secrets.Vault.Token, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Secrets.Vault.Token = val
		}
	}
	if strings.HasPrefix(config.Results.DSN, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Results.DSN, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Results.DSN = val
		}
	}
}

// LoadStudioConfig 加载服务配置（configs/studio.yaml）
func LoadStudioConfig() (*Config, error) {
	return LoadConfig("configs/studio.yaml")
}
